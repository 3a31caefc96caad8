// compileinfoprint is imported by the ecgseg tools for the side effect of
// printing the compileinfo to os.Stderr
package compileinfoprint

import "github.com/carbocation/ecgseg/compileinfo"

func init() {
	compileinfo.PrintToStdErr()
}
