package engine

import (
	"strings"

	"github.com/pavelanni/examgen/internal/model"
)

// ViewPolicy decides whether an actor may open an exam.
type ViewPolicy interface {
	CanView(exam model.Exam, actor model.Actor) bool
}

// SharingPolicy lets the creator always in, anyone into public exams, and
// allow-listed emails into private ones. Emails compare case-insensitively.
type SharingPolicy struct{}

func (SharingPolicy) CanView(exam model.Exam, actor model.Actor) bool {
	if exam.CreatorID == actor.ID || exam.AccessType == model.AccessPublic {
		return true
	}
	if actor.Email == "" {
		return false
	}
	for _, e := range exam.AllowedEmails {
		if strings.EqualFold(strings.TrimSpace(e), actor.Email) {
			return true
		}
	}
	return false
}

// requireCreator fails with KindForbidden unless actor owns exam.
func requireCreator(op string, exam model.Exam, actor model.Actor) error {
	if exam.CreatorID != actor.ID {
		return newError(KindForbidden, op, "only the exam creator may do this", nil)
	}
	return nil
}
