package planner

import "github.com/google/uuid"

// sessionKeySource hands out a fresh short session key per planning
// call, so one planner conversation is never conflated with another.
type sessionKeySource struct{}

func newSessionKeySource() *sessionKeySource { return &sessionKeySource{} }

func (s *sessionKeySource) next() string {
	return "plan-" + uuid.NewString()
}
