package cmd

import (
	"errors"
	"flag"

	"github.com/PatchLens/go-callseq/callseq"
)

const usage = "apply Usage: -apply [-r] <path>...\nunapply Usage: -unapply [-r] <path>...\n" +
	"call tree Usage: <path>/" + callseq.TraceFileName + "..."

// ParseFlags builds Config from the command line flags.
func ParseFlags() (*callseq.Config, error) {
	config := &callseq.Config{}

	// Define all standard flags
	apply := flag.Bool("apply", false, "Insert probes into the C/C++ files")
	unapply := flag.Bool("unapply", false, "Remove probes from the C/C++ files")
	recursive := flag.Bool("r", false, "Recursively collect C/C++ files from the specified directories")
	sourceRoot := flag.String("source-root", "", "Root path of the sources, defaults to the common directory")
	tryRun := flag.Bool("try-run", false, "Compute the changes but don't write files")
	showDiff := flag.Bool("show-diff", false, "Output modifications as a unified diff")
	verbose := flag.Bool("verbose", false, "Log the parsed declarations of each file")
	clangExe := flag.String("clang", "clang++", "clang++ executable used to dump the AST")
	defines := flag.String("define", "", "Comma separated preprocessor definitions passed to clang (e.g. NDEBUG,LEVEL=2)")
	manifestDir := flag.String("manifest", "", "Directory storing the probe sites, used to annotate call trees")
	cacheMB := flag.Int("cachemb", 64, "AST cache memory budget in MB")
	reportJsonFile := flag.String("json", "", "File to output run details")
	reportChartsFile := flag.String("charts", "", "File to output run overview chart image")
	flag.Func("clang-arg", "Extra argument passed to clang, may be repeated (e.g. -clang-arg=-Iinclude)",
		func(arg string) error {
			if arg == "" {
				return errors.New("empty clang argument")
			}
			config.ClangArgs = append(config.ClangArgs, arg)
			return nil
		})

	flag.Parse()

	// Validate standard flags
	if flag.NArg() == 0 {
		return nil, errors.New(usage)
	}

	// Populate config
	config.Paths = flag.Args()
	config.Apply = *apply
	config.Unapply = *unapply
	config.Recursive = *recursive
	config.SourceRoot = *sourceRoot
	config.TryRun = *tryRun
	config.ShowDiff = *showDiff
	config.Verbose = *verbose
	config.ClangExe = *clangExe
	config.DefinesFlag = *defines
	config.ManifestDir = *manifestDir
	config.CacheMB = *cacheMB
	config.ReportJsonFile = *reportJsonFile
	config.ReportChartsFile = *reportChartsFile

	return config, nil
}
