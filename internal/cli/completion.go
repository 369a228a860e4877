package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for hearth.

To load completions:

Bash:
  $ source <(hearth completion bash)
  # To load completions for each session, execute once:
  # Linux:
  $ hearth completion bash > /etc/bash_completion.d/hearth
  # macOS:
  $ hearth completion bash > $(brew --prefix)/etc/bash_completion.d/hearth

Zsh:
  $ source <(hearth completion zsh)
  # To load completions for each session, execute once:
  $ hearth completion zsh > "${fpath[1]}/_hearth"

Fish:
  $ hearth completion fish | source
  # To load completions for each session, execute once:
  $ hearth completion fish > ~/.config/fish/completions/hearth.fish

PowerShell:
  PS> hearth completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
		}
		return nil
	},
}
