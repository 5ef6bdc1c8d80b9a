package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// ExpandUser resolves a leading "~" or "~name" to a home directory.
// Paths it cannot resolve come back unchanged.
func ExpandUser(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	slash := strings.IndexByte(path, '/')
	if slash == -1 {
		slash = len(path)
	}

	var home string
	if name := path[1:slash]; name == "" {
		home, _ = os.UserHomeDir()
	} else {
		home = homeOf("/etc/passwd", name)
	}
	if home == "" {
		return path
	}
	return filepath.Join(home, path[slash:])
}

func homeOf(passwd, name string) string {
	f, err := os.Open(passwd)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) > 5 && fields[0] == name {
			return fields[5]
		}
	}
	return ""
}
