package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyTenantID   = "tenant_id"
	KeyServiceID  = "service_id"
	KeyEventID    = "event_id"
	KeyLockID     = "lock_id"
	KeyStage      = "stage"
	KeyAttempt    = "attempt"
	KeyImage      = "image"
	KeyPath       = "path"
	KeyDigest     = "digest"
	KeyURL        = "url"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyTier       = "tier"
	KeyCommand    = "command"
	KeyWorker     = "worker_id"
	KeyAction     = "action"
	KeyOperator   = "operator"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func TenantID(id string) slog.Attr    { return slog.String(KeyTenantID, id) }
func ServiceID(id string) slog.Attr   { return slog.String(KeyServiceID, id) }
func EventID(id string) slog.Attr     { return slog.String(KeyEventID, id) }
func LockID(id string) slog.Attr      { return slog.String(KeyLockID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func Image(name string) slog.Attr     { return slog.String(KeyImage, name) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Digest(d string) slog.Attr       { return slog.String(KeyDigest, d) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func Tier(t string) slog.Attr         { return slog.String(KeyTier, t) }
func Command(c string) slog.Attr      { return slog.String(KeyCommand, c) }
func Worker(id string) slog.Attr      { return slog.String(KeyWorker, id) }
func Action(a string) slog.Attr       { return slog.String(KeyAction, a) }
func Operator(name string) slog.Attr  { return slog.String(KeyOperator, name) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
