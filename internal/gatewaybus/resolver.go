package gatewaybus

import "context"

// StaticUserResolver is a UserResolver returning a fixed user id, used by
// tests and by simple deployments where the bot's own user id is known at
// startup instead of discovered via REST.
type StaticUserResolver string

func (r StaticUserResolver) CurrentUserID(ctx context.Context) (string, error) {
	return string(r), nil
}
