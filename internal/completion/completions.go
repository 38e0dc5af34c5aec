// Package completion prints shell completion scripts for udl.
package completion

import (
	"fmt"
	"io"
	"strings"
)

// Shells lists the supported shells in help order.
var Shells = []string{"bash", "zsh", "fish"}

// Write prints the completion script for shell to w.
func Write(w io.Writer, shell string) error {
	switch strings.ToLower(strings.TrimSpace(shell)) {
	case "bash":
		_, err := io.WriteString(w, BashCompletion)
		return err
	case "zsh":
		_, err := io.WriteString(w, ZshCompletion)
		return err
	case "fish":
		_, err := io.WriteString(w, FishCompletion)
		return err
	default:
		return fmt.Errorf("unsupported shell: %s (supported: %s)", shell, strings.Join(Shells, ", "))
	}
}

// Usage is printed when no shell is given.
const Usage = `Usage: udl completion <shell>
Supported shells: bash, zsh, fish

Installation examples:
  Bash:  udl completion bash > ~/.local/share/bash-completion/completions/udl
  Zsh:   udl completion zsh > ~/.zsh/completion/_udl
  Fish:  udl completion fish > ~/.config/fish/completions/udl.fish
`

// BashCompletion is the bash completion script.
const BashCompletion = `# udl bash completion
_udl_completion() {
    local cur prev words cword
    _init_completion || return

    local commands="setup audible deezer video queue record tags status cancel completion"
    local flags="-o --out --debug --help"

    case "${words[1]}" in
        audible)
            if [[ $cword -eq 2 ]]; then
                COMPREPLY=($(compgen -W "login import status logout library download activation convert" -- "$cur"))
                return
            fi
            case "${words[2]}" in
                download) COMPREPLY=($(compgen -W "all --no-convert --format" -- "$cur")) ;;
                activation) COMPREPLY=($(compgen -W "--set --no-browser --show" -- "$cur")) ;;
                library) COMPREPLY=($(compgen -W "--refresh --json" -- "$cur")) ;;
                convert|import) _filedir ;;
            esac
            return
            ;;
        deezer)
            if [[ $cword -eq 2 ]]; then
                COMPREPLY=($(compgen -W "login arl status get search --preview" -- "$cur"))
                return
            fi
            [[ "${words[2]}" == "get" ]] && _filedir txt
            return
            ;;
        video)
            COMPREPLY=($(compgen -W "--audio-only --max-height --hls" -- "$cur"))
            [[ "$cur" != -* ]] && _filedir txt
            return
            ;;
        queue)
            _filedir txt
            return
            ;;
        record)
            COMPREPLY=($(compgen -W "--duration --source" -- "$cur"))
            [[ "$cur" != -* ]] && _filedir
            return
            ;;
        tags)
            _filedir
            return
            ;;
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- "$cur"))
            return
            ;;
    esac

    if [[ "$cur" == -* ]]; then
        COMPREPLY=($(compgen -W "$flags" -- "$cur"))
    else
        COMPREPLY=($(compgen -W "$commands" -- "$cur"))
    fi
}

complete -F _udl_completion udl
`

// ZshCompletion is the zsh completion script.
const ZshCompletion = `#compdef udl

_udl() {
    local -a commands
    commands=(
        'setup:interactive first-time setup'
        'audible:Audible session, library, activation and conversion'
        'deezer:Deezer session and track capture'
        'video:download a video or mediathek page'
        'queue:run a list of URLs through the download queue'
        'record:record system audio to a file'
        'tags:print embedded tags of an audio file'
        'status:show the status of a running queue'
        'cancel:cancel a running queue'
        'completion:print a shell completion script'
    )

    _arguments -C \
        '(-o --out)'{-o,--out}'[download directory]:directory:_files -/' \
        '--debug[show browser windows and verbose diagnostics]' \
        '1: :->command' \
        '*:: :->args'

    case $state in
        command)
            _describe 'command' commands
            ;;
        args)
            case $words[1] in
                audible)
                    _values 'audible command' login import status logout library download activation convert
                    ;;
                deezer)
                    _values 'deezer command' login arl status get search
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
                *)
                    _files
                    ;;
            esac
            ;;
    esac
}

_udl "$@"
`

// FishCompletion is the fish completion script.
const FishCompletion = `# udl fish completion
set -l udl_commands setup audible deezer video queue record tags status cancel completion

complete -c udl -f
complete -c udl -n "not __fish_seen_subcommand_from $udl_commands" -a "$udl_commands"
complete -c udl -s o -l out -r -d "download directory"
complete -c udl -l debug -d "show browser windows and verbose diagnostics"

complete -c udl -n "__fish_seen_subcommand_from audible" -a "login import status logout library download activation convert"
complete -c udl -n "__fish_seen_subcommand_from activation" -l set -d "store activation bytes"
complete -c udl -n "__fish_seen_subcommand_from activation" -l no-browser -d "skip the browser fallback"
complete -c udl -n "__fish_seen_subcommand_from deezer" -a "login arl status get search"
complete -c udl -n "__fish_seen_subcommand_from deezer" -l preview -d "download 30 second previews"
complete -c udl -n "__fish_seen_subcommand_from video" -l max-height -r -d "maximum vertical resolution"
complete -c udl -n "__fish_seen_subcommand_from video" -l audio-only -d "extract audio to mp3"
complete -c udl -n "__fish_seen_subcommand_from queue video tags record convert" -F
complete -c udl -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
`
