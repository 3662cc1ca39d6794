// buildimage assembles OpenRAP device images for a board, platform and
// content profile.
package main

import (
	"github.com/projectopenrap/buildimage/src/buildimage/core"
)

func main() {
	core.Execute()
}
