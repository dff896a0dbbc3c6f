package domain

// Identity is the authenticated caller attached to a request context once
// credentials have passed middleware.Auth. Its presence (not its content)
// is what middleware.Authorize currently gates on, since the coordinator's
// single static API key model has no finer-grained role system yet.
type Identity struct {
	Subject string
}
