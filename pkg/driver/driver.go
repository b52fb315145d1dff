// Package driver is the backend collaborator spec.md §1 places "out of
// scope as core": it writes the emitted LLVM IR to a .ll file and shells
// out to the system LLVM toolchain to produce a.out, the way
// original_source/examples/overflow.rs shells to llc then gcc. The
// runCmd/exec.LookPath shape is grounded on
// _examples/MJDaws0n-Novus/internal/codegen/toolchain.go's Toolchain.
package driver

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"kestrel/pkg/source"
)

// Toolchain drives llc and the system C compiler to turn a .ll file into
// a native executable.
type Toolchain struct {
	Verbose bool

	LLFile  string
	ObjFile string
	ExeFile string
}

// ArtifactBasename resolves a .ke source path to the basename under
// which sibling .ll/.mir/.o artifacts are written: the absolute path's
// file name with its extension stripped. Grounded on the teacher's
// pkg/utils.GetPathInfo, which the same filepath.Abs/filepath.Dir pairing
// served to locate a source file's parent directory for #include
// resolution; here the absolute path instead anchors artifact placement
// in the invoking working directory regardless of how the source path
// was spelled on the command line.
func ArtifactBasename(sourcePath string) (string, error) {
	full, err := filepath.Abs(sourcePath)
	if err != nil {
		return "", err
	}
	name := filepath.Base(full)
	return strings.TrimSuffix(name, filepath.Ext(name)), nil
}

func New(basename string) *Toolchain {
	return &Toolchain{
		LLFile:  basename + ".ll",
		ObjFile: basename + ".o",
		ExeFile: "a.out",
	}
}

// WriteIR writes the textual LLVM IR to tc.LLFile.
func (tc *Toolchain) WriteIR(ir string) error {
	return os.WriteFile(tc.LLFile, []byte(ir), 0o644)
}

// Detect reports every required tool missing from PATH, matching
// DetectToolchain's role in the teacher's toolchain.go: a precheck the
// CLI can surface before attempting to build.
func Detect() []string {
	var missing []string
	for _, tool := range []string{"llc", "cc"} {
		if _, err := exec.LookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	return missing
}

// Build runs llc to produce an object file, then invokes the system C
// compiler to link it into a.out, honoring -fsanitize and -o (spec.md
// §4.4, §6). This mirrors overflow.rs's `llc file.ll -o file.o -filetype=obj`
// followed by `gcc -no-pie file.o -o a.out`.
func (tc *Toolchain) Build(flags source.Flags) error {
	llcArgs := []string{tc.LLFile, "-filetype=obj", "-o", tc.ObjFile}
	if flags.Optimize {
		llcArgs = append(llcArgs, "-O2")
	}
	if err := tc.run("llc", llcArgs, "compile"); err != nil {
		return err
	}

	ccArgs := []string{"-no-pie", tc.ObjFile, "-o", tc.ExeFile}
	if flags.Sanitize != "" {
		ccArgs = append(ccArgs, "-fsanitize="+flags.Sanitize)
	}
	if err := tc.run("cc", ccArgs, "link"); err != nil {
		return err
	}
	return nil
}

func (tc *Toolchain) run(name string, args []string, stage string) error {
	cmd := exec.Command(name, args...)
	if tc.Verbose {
		fmt.Fprintf(os.Stderr, "[driver] %s: %s %s\n", stage, name, strings.Join(args, " "))
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr
	cmd.Stdout = os.Stdout

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %v\n%s", stage, err, stderr.String())
	}
	return nil
}
