// Package policy centralises capability checks. Handlers and services ask
// whether a role may perform an action instead of branching on role values.
package policy

import "github.com/colegio-gt/unidades-api/internal/models"

// Action names an operation subject to authorization.
type Action string

const (
	ActionManageUnits       Action = "units:manage"
	ActionCloseUnit         Action = "units:close"
	ActionRecomputeGrades   Action = "units:recompute"
	ActionManageActivities  Action = "activities:manage"
	ActionEditGrades        Action = "grades:edit"
	ActionRequestReopening  Action = "reopenings:request"
	ActionProcessReopening  Action = "reopenings:process"
	ActionListReopenings    Action = "reopenings:list"
	ActionReadReadiness     Action = "readiness:read"
	ActionReadUnitGrades    Action = "unitgrades:read"
	ActionReadNotifications Action = "notifications:read"
	ActionSendNotifications Action = "notifications:send"
)

// grant describes who may perform an action: listed roles unconditionally,
// or a teacher proving ownership of the affected offering.
type grant struct {
	roles      []models.UserRole
	ownerRoles []models.UserRole
}

var grants = map[Action]grant{
	ActionManageUnits:       {roles: []models.UserRole{models.RoleAdmin, models.RoleOperator}},
	ActionCloseUnit:         {roles: []models.UserRole{models.RoleAdmin}},
	ActionRecomputeGrades:   {roles: []models.UserRole{models.RoleAdmin}},
	ActionManageActivities:  {roles: []models.UserRole{models.RoleAdmin}, ownerRoles: []models.UserRole{models.RoleTeacher}},
	ActionEditGrades:        {roles: []models.UserRole{models.RoleAdmin}, ownerRoles: []models.UserRole{models.RoleTeacher}},
	ActionRequestReopening:  {ownerRoles: []models.UserRole{models.RoleTeacher}},
	ActionProcessReopening:  {roles: []models.UserRole{models.RoleAdmin}},
	ActionListReopenings:    {roles: []models.UserRole{models.RoleAdmin}},
	ActionReadReadiness:     {roles: []models.UserRole{models.RoleAdmin, models.RoleOperator}, ownerRoles: []models.UserRole{models.RoleTeacher}},
	ActionReadUnitGrades:    {roles: []models.UserRole{models.RoleAdmin, models.RoleOperator, models.RoleGuardian}, ownerRoles: []models.UserRole{models.RoleTeacher}},
	ActionReadNotifications: {ownerRoles: []models.UserRole{models.RoleTeacher}, roles: []models.UserRole{models.RoleAdmin}},
	ActionSendNotifications: {roles: []models.UserRole{models.RoleAdmin, models.RoleOperator}},
}

// Can reports whether the role may perform the action. owns indicates the
// caller proved ownership of the affected course offering.
func Can(action Action, role models.UserRole, owns bool) bool {
	g, ok := grants[action]
	if !ok {
		return false
	}
	for _, r := range g.roles {
		if r == role {
			return true
		}
	}
	if owns {
		for _, r := range g.ownerRoles {
			if r == role {
				return true
			}
		}
	}
	return false
}
