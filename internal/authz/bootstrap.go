package authz

import (
	"fmt"
	"sort"
)

// 内置角色与操作者类型一一对应
const (
	ActorRoleCustomer = "customer"
	ActorRoleStaff    = "staff"
)

// RoleSeed 预置角色定义
type RoleSeed struct {
	Role     string
	Policies []Policy
}

// BuiltinRoleSeeds 系统预置角色矩阵
func BuiltinRoleSeeds() []RoleSeed {
	return []RoleSeed{
		{
			Role: ActorRoleCustomer,
			Policies: []Policy{
				{Object: "/scans", Action: "POST"},
				{Object: "/memberships", Action: "GET"},
				{Object: "/memberships/:id/state", Action: "GET"},
				{Object: "/memberships/:id/stamps", Action: "GET"},
				{Object: "/memberships/:id/tokens", Action: "POST"},
			},
		},
		{
			Role: ActorRoleStaff,
			Policies: []Policy{
				{Object: "/merchant/tokens", Action: "POST"},
				{Object: "/merchant/scans", Action: "POST"},
				{Object: "/merchant/memberships/:id/state", Action: "GET"},
				{Object: "/merchant/memberships/:id/stamps", Action: "GET"},
				{Object: "/merchant/memberships/:id/redeem", Action: "POST"},
				{Object: "/merchant/memberships/:id/redemptions", Action: "GET"},
			},
		},
	}
}

// SyncResult 策略同步结果
type SyncResult struct {
	Added   []Policy
	Removed []Policy
}

// SyncRolePolicies 将内置角色的策略收敛为预置矩阵加额外授权
// extra 中的 Subject 为操作者类型（customer / staff），不在目标集合中的旧策略会被撤销
func (s *Service) SyncRolePolicies(extra []Policy) (SyncResult, error) {
	var result SyncResult
	if s == nil || s.enforcer == nil {
		return result, fmt.Errorf("authz service unavailable")
	}

	desired := make(map[string]map[string]Policy)
	add := func(roleName string, policy Policy) error {
		role, err := RoleForActorType(roleName)
		if err != nil {
			return err
		}
		action := NormalizeAction(policy.Action)
		if action == "" {
			return fmt.Errorf("policy action is required for role %s", roleName)
		}
		normalized := Policy{Subject: role, Object: NormalizeObject(policy.Object), Action: action}
		if desired[role] == nil {
			desired[role] = make(map[string]Policy)
		}
		desired[role][normalized.key()] = normalized
		return nil
	}
	for _, seed := range BuiltinRoleSeeds() {
		for _, policy := range seed.Policies {
			if err := add(seed.Role, policy); err != nil {
				return result, err
			}
		}
	}
	for _, policy := range extra {
		if err := add(policy.Subject, policy); err != nil {
			return result, fmt.Errorf("invalid extra policy: %w", err)
		}
	}

	roles := make([]string, 0, len(desired))
	for role := range desired {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	for _, role := range roles {
		current, err := s.rolePolicies(role)
		if err != nil {
			return result, err
		}
		for key, policy := range desired[role] {
			if _, ok := current[key]; ok {
				continue
			}
			if _, err := s.enforcer.AddPolicy(role, policy.Object, policy.Action); err != nil {
				return result, fmt.Errorf("add policy failed: %w", err)
			}
			result.Added = append(result.Added, policy)
		}
		for key, policy := range current {
			if _, ok := desired[role][key]; ok {
				continue
			}
			if _, err := s.enforcer.RemovePolicy(role, policy.Object, policy.Action); err != nil {
				return result, fmt.Errorf("remove stale policy failed: %w", err)
			}
			result.Removed = append(result.Removed, policy)
		}
	}
	sortPolicies(result.Added)
	sortPolicies(result.Removed)
	return result, nil
}

func sortPolicies(policies []Policy) {
	sort.Slice(policies, func(i, j int) bool {
		if policies[i].Subject != policies[j].Subject {
			return policies[i].Subject < policies[j].Subject
		}
		if policies[i].Object != policies[j].Object {
			return policies[i].Object < policies[j].Object
		}
		return policies[i].Action < policies[j].Action
	})
}
