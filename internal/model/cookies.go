package model

// Cookie names shared by the server route layer and the client session manager.
const (
	AccessTokenCookie       = "accessToken"
	AccessTokenClientCookie = "accessTokenClient"
	RefreshTokenCookie      = "refreshToken"
)
