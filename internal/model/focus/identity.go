package focus

// GuestUserID 未登录时使用的用户标识。
const GuestUserID = "guest"

// Identity 身份提供方给出的两项事实：用户标识与是否绑定社交账号。
type Identity struct {
	UserID       string `json:"userId"`
	SocialLinked bool   `json:"socialLinked"`
}
