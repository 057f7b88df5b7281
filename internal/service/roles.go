package service

import (
	"strings"

	"gate-monitor/internal/domain/monitor"
)

// RoleAssignment names which camera at the gate plays each detection
// role. Either pointer may be nil: a missing front camera means plate
// detection is unavailable, a missing side camera means color and
// wheel-count fields stay empty.
type RoleAssignment struct {
	Front *monitor.Camera
	Side  *monitor.Camera
}

// roleRule matches one camera field against a keyword set. Rules are
// evaluated in order; the first camera matching the first rule wins.
type roleRule struct {
	field    func(monitor.Camera) string
	keywords []string
}

// Keyword sets cover both English and Vietnamese labels, since camera
// records come from sites configured in either language.
var frontRules = []roleRule{
	{field: func(c monitor.Camera) string { return string(c.Tag) }, keywords: []string{string(monitor.TagFront)}},
	{field: func(c monitor.Camera) string { return c.Type }, keywords: []string{"plate", "lpr", "anpr", "bien so", "biển số"}},
	{field: func(c monitor.Camera) string { return c.Name }, keywords: []string{"front", "truoc", "trước"}},
}

var sideRules = []roleRule{
	{field: func(c monitor.Camera) string { return string(c.Tag) }, keywords: []string{string(monitor.TagSide)}},
	{field: func(c monitor.Camera) string { return c.Type }, keywords: []string{"color", "wheel", "mau sac", "màu sắc", "banh xe", "bánh xe"}},
	{field: func(c monitor.Camera) string { return c.Name }, keywords: []string{"side", "hong", "hông"}},
}

// ResolveRoles deterministically selects the front and side cameras for
// a gate. Explicit tags outrank capability keywords, which outrank
// positional name keywords. Resolution is pure: it holds no state and
// is recomputed whenever the camera list changes.
func ResolveRoles(cameras []monitor.Camera) RoleAssignment {
	return RoleAssignment{
		Front: matchRole(cameras, frontRules),
		Side:  matchRole(cameras, sideRules),
	}
}

func matchRole(cameras []monitor.Camera, rules []roleRule) *monitor.Camera {
	for _, rule := range rules {
		for i := range cameras {
			value := strings.ToLower(rule.field(cameras[i]))
			if value == "" {
				continue
			}
			for _, kw := range rule.keywords {
				if strings.Contains(value, kw) {
					return &cameras[i]
				}
			}
		}
	}
	return nil
}
