package permission

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// BashCommand is one simple command pulled out of a shell line.
type BashCommand struct {
	Name       string   // command name (e.g., "rm", "git")
	Args       []string // arguments, flags included
	Subcommand string   // first non-flag argument (e.g., "commit" in "git commit")
}

// ParseBashCommand walks a shell line with a real bash parser, returning
// every simple command it contains (pipelines, &&-chains, subshells).
func ParseBashCommand(command string) ([]BashCommand, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)

	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("failed to parse command: %w", err)
	}

	var commands []BashCommand
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if cmd := callToCommand(call); cmd != nil {
				commands = append(commands, *cmd)
			}
		}
		return true
	})
	return commands, nil
}

// callToCommand flattens one CallExpr into a BashCommand.
func callToCommand(call *syntax.CallExpr) *BashCommand {
	if len(call.Args) == 0 {
		return nil
	}

	cmd := &BashCommand{Name: flattenWord(call.Args[0])}
	if cmd.Name == "" {
		return nil
	}

	for _, arg := range call.Args[1:] {
		argStr := flattenWord(arg)
		cmd.Args = append(cmd.Args, argStr)
		if cmd.Subcommand == "" && !strings.HasPrefix(argStr, "-") {
			cmd.Subcommand = argStr
		}
	}
	return cmd
}

// flattenWord renders a shell word to plain text. Expansions keep a
// marker ("$VAR", "$()") so patterns never silently match dynamic input.
func flattenWord(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

// DangerousCommands mutate the filesystem and get path validation.
var DangerousCommands = map[string]bool{
	"cd":    true,
	"rm":    true,
	"cp":    true,
	"mv":    true,
	"mkdir": true,
	"touch": true,
	"chmod": true,
	"chown": true,
	"rmdir": true,
	"dd":    true,
}

// IsDangerousCommand reports whether name is in the dangerous set.
func IsDangerousCommand(name string) bool {
	return DangerousCommands[name]
}

// ExtractPaths pulls the path-like arguments out of a command, skipping
// flags and chmod mode specs.
func ExtractPaths(cmd BashCommand) []string {
	var paths []string
	for _, arg := range cmd.Args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		if cmd.Name == "chmod" && isChmodMode(arg) {
			continue
		}
		paths = append(paths, arg)
	}
	return paths
}

// isChmodMode recognizes numeric (755) and symbolic (u+x) mode arguments.
func isChmodMode(arg string) bool {
	if arg == "" {
		return false
	}
	switch {
	case arg[0] >= '0' && arg[0] <= '9':
		return true
	case arg[0] == 'u', arg[0] == 'g', arg[0] == 'o', arg[0] == 'a':
		return true
	case arg[0] == '+', arg[0] == '=':
		return true
	}
	return false
}

// ResolvePath turns a command argument into an absolute path. Relative
// paths resolve through realpath when present so symlinks can't smuggle
// a path outside the working directory.
func ResolvePath(ctx context.Context, path, workDir string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	if strings.HasPrefix(path, "~") {
		// Expanding ~ needs the user's identity; leave it alone.
		return path, nil
	}

	cmd := exec.CommandContext(ctx, "realpath", "-m", path)
	cmd.Dir = workDir
	output, err := cmd.Output()
	if err != nil {
		return filepath.Clean(filepath.Join(workDir, path)), nil
	}
	return strings.TrimSpace(string(output)), nil
}

// IsWithinDir reports whether path sits at or under dir.
func IsWithinDir(path, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return !strings.HasPrefix(rel, "..")
}
