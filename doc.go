// Package auth manages identity, registration and sessions for the QC
// dashboard. It is backed by a local SQLite store through Bun.
//
// Enrollment:
//   - Administrators and method engineers issue enrollment codes with
//     CodeRegistry.Issue. A code carries the role and optional unit, sub-unit
//     and group the future account will hold.
//   - RegistrationWorkflow.Submit turns a valid code into a pending request.
//     A reviewer approves it, which consumes the code and creates the
//     account, or rejects it, which leaves the code usable for a new request.
//
// Sessions:
//   - SessionManager owns the single live session of the process. Sessions
//     end on logout, inactivity timeout or when Validate finds the account
//     disabled, deleted or moved to another role. Every end is announced once
//     to the listeners registered with OnSessionEnded.
//   - Roles allowed by their policy can hold remember tokens and log in again
//     with LoginWithRememberToken.
//
// Authorization:
//   - RolePolicies is a static table keyed by Role. CanReview, CanIssueCode
//     and CanAccess are pure functions of the actor and the target.
//
// Activity sinks:
//   - ActivitySink receives login, registration, code and account lifecycle
//     events. Sinks run best-effort (errors are logged) so a failing sink never
//     fails the operation that emitted the event.
package auth
