package middlewares

// gin context keys; the identity itself lives in the request context (actorctx)
const (
	CtxRequestID = "request_id"
	CtxUserID    = "auth.userID"
	CtxRole      = "auth.role"
)
