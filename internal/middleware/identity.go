package middleware

import "github.com/gin-gonic/gin"

// Identity 请求方身份（从JWT claims提取）
type Identity struct {
	UserID  string
	Name    string
	Email   string
	OrgID   string
	OrgName string
	Role    string
}

// GetIdentity 从上下文获取调用方身份
func GetIdentity(c *gin.Context) Identity {
	return Identity{
		UserID:  c.GetString("user_id"),
		Name:    c.GetString("user_name"),
		Email:   c.GetString("user_email"),
		OrgID:   c.GetString("org_id"),
		OrgName: c.GetString("org_name"),
		Role:    c.GetString("role"),
	}
}
