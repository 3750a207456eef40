package exchange

import (
	"github.com/aimerfeng/SkillExchange/internal/models"
	"github.com/google/uuid"
)

type edge struct {
	from, to models.RequestStatus
}

// transitions lists every legal status change and the roles allowed to make
// it. Anything absent is an invalid state change.
var transitions = map[edge]map[models.ParticipantRole]bool{
	{models.RequestStatusPending, models.RequestStatusAccepted}:   {models.RoleReceiver: true},
	{models.RequestStatusPending, models.RequestStatusRejected}:   {models.RoleReceiver: true},
	{models.RequestStatusAccepted, models.RequestStatusCompleted}: {models.RoleReceiver: true, models.RoleSender: true},
}

// Targets are the statuses a client may ask for, in display order
var Targets = []models.RequestStatus{
	models.RequestStatusAccepted,
	models.RequestStatusRejected,
	models.RequestStatusCompleted,
}

func isTarget(s models.RequestStatus) bool {
	for _, t := range Targets {
		if t == s {
			return true
		}
	}
	return false
}

// Decide returns nil when role may move a request from current to target,
// or the error explaining why not.
func Decide(current, target models.RequestStatus, role models.ParticipantRole) error {
	if !isTarget(target) {
		return ErrInvalidTargetStatus
	}
	if role == models.RoleNone {
		return ErrNotParticipant
	}
	if (target == models.RequestStatusAccepted || target == models.RequestStatusRejected) && role != models.RoleReceiver {
		return ErrReceiverOnly
	}
	roles, ok := transitions[edge{current, target}]
	if !ok {
		return ErrInvalidTransition
	}
	if !roles[role] {
		return ErrNotParticipant
	}
	return nil
}

// AllowedActions lists the targets viewer may currently request
func AllowedActions(req *models.ExchangeRequest, viewer uuid.UUID) []models.RequestStatus {
	role := req.Role(viewer)
	out := make([]models.RequestStatus, 0, len(Targets))
	for _, t := range Targets {
		if Decide(req.Status, t, role) == nil {
			out = append(out, t)
		}
	}
	return out
}
