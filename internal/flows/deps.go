package flows

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Tokens   TokenDeps
	Refresh  RefreshDeps
	Outbound OutboundDeps
	Login    LoginDeps
	Account  AccountDeps
	Validate ValidateDeps
	Profile  ProfileDeps
}
