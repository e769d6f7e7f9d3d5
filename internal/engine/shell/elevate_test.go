package shell

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsElevatedFor_Unix(t *testing.T) {
	tests := []struct {
		command  string
		elevated bool
	}{
		{"sudo ls /root", true},
		{"  sudo cat /var/log/syslog", true},
		{"SUDO apt update", true},
		{"doas reboot", true},
		{"pkexec systemctl restart nginx", true},
		{"ls -la", false},
		{"echo sudo", false},
		{"grep sudo /etc/group", false},
		{"sudoedit /etc/hosts", false},
		{"", false},
		{"   ", false},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			assert.Equal(t, tt.elevated, isElevatedFor("linux", tt.command))
		})
	}
}

func TestIsElevatedFor_UnbalancedQuotes(t *testing.T) {
	// The tokenizer falls back to whitespace splitting instead of failing.
	assert.True(t, isElevatedFor("linux", `sudo sh -c "unclosed`))
	assert.False(t, isElevatedFor("linux", `echo "unclosed`))
}

func TestIsElevatedFor_Windows(t *testing.T) {
	tests := []struct {
		command  string
		elevated bool
	}{
		{"sudo Get-Process", true},
		{"runas /user:Administrator cmd", true},
		{"reg add HKLM\\Software\\Test", true},
		{"reg delete HKLM\\Software\\Test", true},
		{"sc.exe stop spooler", true},
		{"net user admin password /add", true},
		{"net localgroup Administrators user /add", true},
		{"Set-ExecutionPolicy Bypass", true},
		{"Install-Module PSReadLine", true},
		{"Get-Process", false},
		{"dir C:\\", false},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			assert.Equal(t, tt.elevated, isElevatedFor("windows", tt.command))
		})
	}
}

func TestStripElevationPrefix(t *testing.T) {
	assert.Equal(t, "ls /root", StripElevationPrefix("sudo ls /root"))
	assert.Equal(t, "reboot", StripElevationPrefix("doas reboot"))
	assert.Equal(t, "systemctl restart nginx", StripElevationPrefix("pkexec systemctl restart nginx"))
	assert.Equal(t, "ls -la", StripElevationPrefix("ls -la"))
	assert.Equal(t, `sh -c "echo hi"`, StripElevationPrefix(`sudo sh -c "echo hi"`))
}

func TestNormalArgv(t *testing.T) {
	assert.Equal(t, []string{"sh", "-c", "ls"}, normalArgv("linux", "ls"))
	assert.Equal(t, []string{"sh", "-c", "ls"}, normalArgv("darwin", "ls"))
	assert.Equal(t, []string{"powershell", "-NoProfile", "-Command", "dir"}, normalArgv("windows", "dir"))
}

func TestElevatedArgv_Darwin(t *testing.T) {
	argv := elevatedArgv("darwin", `sudo cat "/etc/sudoers"`)

	assert.Equal(t, "osascript", argv[0])
	assert.Equal(t, "-e", argv[1])
	assert.Contains(t, argv[2], "with administrator privileges")
	// Inner quotes are escaped for the AppleScript string literal.
	assert.Contains(t, argv[2], `cat \"/etc/sudoers\"`)
	assert.NotContains(t, argv[2], "sudo")
}

func TestElevatedArgv_Linux(t *testing.T) {
	argv := elevatedArgv("linux", "sudo systemctl restart nginx")

	// pkexec when available, sudo -S otherwise; both wrap with sh -c and
	// strip the caller's prefix.
	switch argv[0] {
	case "pkexec":
		assert.Equal(t, []string{"pkexec", "sh", "-c", "systemctl restart nginx"}, argv)
	case "sudo":
		assert.Equal(t, []string{"sudo", "-S", "sh", "-c", "systemctl restart nginx"}, argv)
	default:
		t.Fatalf("unexpected escalation binary %q", argv[0])
	}
}

func TestElevatedArgv_Windows(t *testing.T) {
	argv := elevatedArgv("windows", `sudo reg add "HKLM\Software\Test"`)

	assert.Equal(t, []string{"powershell", "-NoProfile", "-Command"}, argv[:3])
	assert.Contains(t, argv[3], "Start-Process powershell")
	assert.Contains(t, argv[3], "-Verb RunAs")
	assert.Contains(t, argv[3], "-WindowStyle Hidden")
	// Double quotes are backtick-escaped for PowerShell.
	assert.True(t, strings.Contains(argv[3], "`\"HKLM"))
}
