package session

import (
	"context"
	"fmt"

	"github.com/chatfleet/sessiond/internal/protocol"
)

// Hook is one ordered post-connect step. Hooks run after a session reports
// opened; a failing hook is logged and never aborts the remaining hooks or
// the connection.
type Hook struct {
	Name string
	// NewSessionsOnly restricts the hook to sessions that had no stored
	// credential before this connect.
	NewSessionsOnly bool
	Run             func(ctx context.Context, conn protocol.Conn, identity string) error
}

// BuildHooks assembles the standard post-connect sequence: follow the
// configured broadcast channels, join the configured groups, then send the
// one-time welcome note to the identity's own chat on brand-new sessions.
func BuildHooks(channels, groups []string, welcome string) []Hook {
	var hooks []Hook

	for _, target := range channels {
		hooks = append(hooks, Hook{
			Name: fmt.Sprintf("follow:%s", target),
			Run: func(ctx context.Context, conn protocol.Conn, identity string) error {
				return conn.FollowChannel(ctx, target)
			},
		})
	}

	for _, target := range groups {
		hooks = append(hooks, Hook{
			Name: fmt.Sprintf("join:%s", target),
			Run: func(ctx context.Context, conn protocol.Conn, identity string) error {
				return conn.JoinGroup(ctx, target)
			},
		})
	}

	if welcome != "" {
		hooks = append(hooks, Hook{
			Name:            "welcome",
			NewSessionsOnly: true,
			Run: func(ctx context.Context, conn protocol.Conn, identity string) error {
				return conn.SendText(ctx, identity, welcome)
			},
		})
	}

	return hooks
}

// runHooks executes the supervisor's hooks in order for a freshly opened
// session.
func (s *Supervisor) runHooks(ctx context.Context, ent *Entry) {
	for _, h := range s.hooks {
		if h.NewSessionsOnly && !ent.IsNew {
			continue
		}
		if err := h.Run(ctx, ent.Conn, ent.Identity); err != nil {
			s.logger.Warn("post-connect hook failed",
				"identity", ent.Identity,
				"hook", h.Name,
				"error", err,
			)
		}
	}
}
