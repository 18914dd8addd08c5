package xctest

import (
	"strings"

	"idbcore/internal/coreerr"
)

// SigningPolicy gates whether a runner-app payload is acceptable to
// install on the target before the launch phase (spec §4.2 step 1:
// "ensure a code signature matches the target's policy"). Modeled on
// FBCodesignProvider.h's contract from original_source/XCTestBootstrap:
// a single verification entry point, with signing itself out of scope
// for this daemon (it consumes already-signed or ad-hoc-eligible
// payloads rather than performing code signing).
type SigningPolicy interface {
	// Verify checks bundlePath against the policy, returning an error
	// of KindPrecondition if it does not satisfy it.
	Verify(bundlePath string) error
}

// AdHocPolicy accepts any bundle path unconditionally — the default for
// simulators, which do not enforce code-signature verification at
// install time (spec §4.2 step 1: "ad-hoc acceptable for simulators").
type AdHocPolicy struct{}

func (AdHocPolicy) Verify(bundlePath string) error { return nil }

// RequireSignedPolicy rejects an empty bundle path or one that is not an
// .app bundle; a real device policy would additionally inspect the
// embedded provisioning profile and signing identity, deliberately left
// as a Non-goal seam — this daemon has no code-signing machinery of its
// own.
type RequireSignedPolicy struct{}

func (RequireSignedPolicy) Verify(bundlePath string) error {
	if bundlePath == "" || !strings.HasSuffix(bundlePath, ".app") {
		return coreerr.New(coreerr.KindPrecondition, "xctest.RequireSignedPolicy.Verify", "bundle path %q is not a signable application bundle", bundlePath)
	}
	return nil
}
