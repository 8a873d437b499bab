// Package alerts evaluates threshold rules against every output tuple of the
// running session and delivers webhook notifications (Slack, Teams or
// generic HTTP) when a rule fires or resolves.
//
// Rules are hot-reloadable through Engine.SetConfig; alerts for rules that
// disappear are dropped without a resolve notification.
package alerts
