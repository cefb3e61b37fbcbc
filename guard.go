package main

import (
	"fmt"
	goversion "go/version"

	log "github.com/sirupsen/logrus"
)

const minimumRuntime = "go1.22"

// checkRuntime refuses to run on a Go runtime older than minimum.
// Development builds report a non-release version string and are accepted.
func checkRuntime(current, minimum string) error {
	if !goversion.IsValid(current) {
		log.Debugf("Remark: runtime version %q is not a release version, skipping check.", current)
		return nil
	}
	if goversion.Compare(current, minimum) < 0 {
		return fmt.Errorf("runtime %s is older than the required %s", current, minimum)
	}
	return nil
}
