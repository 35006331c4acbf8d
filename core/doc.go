// Package core contains the request pipeline shared by every Twitch API surface:
// transport and credential contracts, endpoint descriptors, the execution
// engine, the pagination walker and the error taxonomy. Core must not depend on
// concrete transports or API packages.
package core
