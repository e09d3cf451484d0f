// Package license models the boundary to an enterprise license plug-in
// (§9 "Enterprise license plug-in"). The real plug-in is an external
// collaborator outside this repo's scope; what lives here is the interface
// this core calls against and the no-op default wired when none is
// configured.
package license

// Checker answers whether a gated feature is allowed under the currently
// loaded license. The default Checker (see NoOp) denies everything, so an
// unconfigured cluster runs in community-edition mode rather than silently
// unlocking enterprise behavior.
type Checker interface {
	IsFeatureAllowed(id string) bool
}

type alwaysDenied struct{}

func (alwaysDenied) IsFeatureAllowed(string) bool { return false }

// NoOp is the default Checker wired when no license plug-in is configured.
var NoOp Checker = alwaysDenied{}
