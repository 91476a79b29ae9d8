package authz

import (
	"fmt"
	"strings"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	"github.com/casbin/casbin/v3/util"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

const (
	apiV1Prefix     = "/api/v1"
	casbinTableName = "casbin_rule"
	actorSubjectFmt = "%s:%d"
	rolePrefix      = "role:"
)

const actorRBACModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

// Policy 权限策略
type Policy struct {
	Subject string `json:"subject"`
	Object  string `json:"object"`
	Action  string `json:"action"`
}

// Service Casbin 授权服务
// 先按操作者类型角色（role:customer / role:staff）判定，再按个人主体（staff:7）判定
type Service struct {
	enforcer *casbin.SyncedEnforcer
}

// NewService 创建授权服务，策略持久化在 casbin_rule 表
func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("authz db is nil")
	}
	rbac, err := model.NewModelFromString(actorRBACModel)
	if err != nil {
		return nil, fmt.Errorf("load authz model failed: %w", err)
	}
	adapter, err := gormadapter.NewAdapterByDBUseTableName(db, "", casbinTableName)
	if err != nil {
		return nil, fmt.Errorf("create authz adapter failed: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(rbac, adapter)
	if err != nil {
		return nil, fmt.Errorf("init authz enforcer failed: %w", err)
	}
	enforcer.AddFunction("keyMatch2", util.KeyMatch2Func)
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("load authz policy failed: %w", err)
	}
	return &Service{enforcer: enforcer}, nil
}

// Enforce 执行授权判断
func (s *Service) Enforce(sub, obj, act string) (bool, error) {
	if s == nil || s.enforcer == nil {
		return false, fmt.Errorf("authz service unavailable")
	}
	return s.enforcer.Enforce(strings.TrimSpace(sub), NormalizeObject(obj), NormalizeAction(act))
}

// EnforceActor 按操作者类型判定授权，直连授予个人主体的策略同样生效
func (s *Service) EnforceActor(actorType string, actorID uint, obj, act string) (bool, error) {
	role, err := RoleForActorType(actorType)
	if err != nil {
		return false, err
	}
	allowed, err := s.Enforce(role, obj, act)
	if err != nil || allowed {
		return allowed, err
	}
	if actorID == 0 {
		return false, nil
	}
	return s.Enforce(SubjectForActor(actorType, actorID), obj, act)
}

// rolePolicies 读取角色当前的策略集合，键为 "对象 动作"
func (s *Service) rolePolicies(role string) (map[string]Policy, error) {
	rules, err := s.enforcer.GetFilteredPolicy(0, role)
	if err != nil {
		return nil, fmt.Errorf("get role policies failed: %w", err)
	}
	current := make(map[string]Policy, len(rules))
	for _, rule := range rules {
		if len(rule) < 3 {
			continue
		}
		policy := Policy{Subject: role, Object: NormalizeObject(rule[1]), Action: NormalizeAction(rule[2])}
		current[policy.key()] = policy
	}
	return current, nil
}

func (p Policy) key() string {
	return p.Object + " " + p.Action
}

// SubjectForActor 生成个人主体标识（如 staff:7）
func SubjectForActor(actorType string, actorID uint) string {
	return fmt.Sprintf(actorSubjectFmt, strings.ToLower(strings.TrimSpace(actorType)), actorID)
}

// RoleForActorType 操作者类型对应的内置角色（customer -> role:customer）
func RoleForActorType(actorType string) (string, error) {
	actorType = strings.ToLower(strings.TrimSpace(actorType))
	switch actorType {
	case ActorRoleCustomer, ActorRoleStaff:
		return rolePrefix + actorType, nil
	}
	return "", fmt.Errorf("unknown actor type: %q", actorType)
}

// NormalizeObject 统一授权资源路径
func NormalizeObject(object string) string {
	normalized := strings.TrimSpace(object)
	if normalized == "" {
		return "/"
	}
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasPrefix(normalized, apiV1Prefix+"/") {
		return strings.TrimPrefix(normalized, apiV1Prefix)
	}
	if normalized == apiV1Prefix {
		return "/"
	}
	return normalized
}

// NormalizeAction 统一授权动作
func NormalizeAction(action string) string {
	return strings.ToUpper(strings.TrimSpace(action))
}
