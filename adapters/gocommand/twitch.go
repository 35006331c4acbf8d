package gocommand

import (
	gocmd "github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	"github.com/goliatone/go-twitch/auth"
	"github.com/goliatone/go-twitch/command"
	"github.com/goliatone/go-twitch/helix"
	"github.com/goliatone/go-twitch/query"
	"github.com/goliatone/go-twitch/tmi"
)

// Handlers groups the services behind the twitch commands and queries. Nil
// members skip the handlers that depend on them.
type Handlers struct {
	Credentials command.CredentialService
	Topics      command.TopicService
	Validator   query.CredentialValidator
	Chatters    query.ChattersReader
	Moderators  query.ModeratorLister
}

// Subscriptions tracks dispatcher subscriptions so they can be released together.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, sub := range s {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

// RegisterHandlers registers and subscribes every twitch command and query
// whose service is present. On failure the subscriptions made so far are
// released.
func RegisterHandlers(adapter *RegistryAdapter, handlers Handlers, runnerOpts ...runner.Option) (Subscriptions, error) {
	if _, err := adapter.target(); err != nil {
		return nil, err
	}
	subs := Subscriptions{}
	track := func(sub commanddispatcher.Subscription, err error) error {
		if err != nil {
			subs.Unsubscribe()
			return err
		}
		subs = append(subs, sub)
		return nil
	}

	if handlers.Credentials != nil {
		if err := track(subscribeCommand[command.RefreshCredentialMessage](adapter, command.NewRefreshCredentialCommand(handlers.Credentials), runnerOpts...)); err != nil {
			return nil, err
		}
		if err := track(subscribeCommand[command.RevokeCredentialMessage](adapter, command.NewRevokeCredentialCommand(handlers.Credentials), runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.Topics != nil {
		if err := track(subscribeCommand[command.SubscribeTopicMessage](adapter, command.NewSubscribeTopicCommand(handlers.Topics), runnerOpts...)); err != nil {
			return nil, err
		}
		if err := track(subscribeCommand[command.UnsubscribeTopicMessage](adapter, command.NewUnsubscribeTopicCommand(handlers.Topics), runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.Validator != nil {
		if err := track(subscribeQuery[query.ValidateCredentialMessage, auth.Validation](adapter, query.NewValidateCredentialQuery(handlers.Validator), runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.Chatters != nil {
		if err := track(subscribeQuery[query.GetChattersMessage, tmi.ChattersResponse](adapter, query.NewGetChattersQuery(handlers.Chatters), runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.Moderators != nil {
		if err := track(subscribeQuery[query.ListModeratorsMessage, []helix.Moderator](adapter, query.NewListModeratorsQuery(handlers.Moderators), runnerOpts...)); err != nil {
			return nil, err
		}
	}
	return subs, nil
}

func subscribeCommand[T any](adapter *RegistryAdapter, cmd gocmd.Commander[T], runnerOpts ...runner.Option) (commanddispatcher.Subscription, error) {
	sub := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.Register(cmd); err != nil {
		sub.Unsubscribe()
		return nil, err
	}
	return sub, nil
}

func subscribeQuery[T any, R any](adapter *RegistryAdapter, qry gocmd.Querier[T, R], runnerOpts ...runner.Option) (commanddispatcher.Subscription, error) {
	sub := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.Register(qry); err != nil {
		sub.Unsubscribe()
		return nil, err
	}
	return sub, nil
}
