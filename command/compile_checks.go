package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[RefreshCredentialMessage] = (*RefreshCredentialCommand)(nil)
	_ gocmd.Commander[RevokeCredentialMessage]  = (*RevokeCredentialCommand)(nil)
	_ gocmd.Commander[SubscribeTopicMessage]    = (*SubscribeTopicCommand)(nil)
	_ gocmd.Commander[UnsubscribeTopicMessage]  = (*UnsubscribeTopicCommand)(nil)
)
