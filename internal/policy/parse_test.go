package policy

import (
	"testing"

	"github.com/armord/armord/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProfile = `
# Confinement profile for the Stalwart mail daemon.
profile stalwart-mail /opt/stalwart/bin/stalwart flags=(attach_disconnected) {
  #include <abstractions/base>

  network inet stream,
  network inet stream bind port 25,

  /opt/stalwart/** rwk,
  owner /opt/stalwart/etc/** rw,
  /opt/stalwart/bin/stalwart rix,
  /usr/bin/sendmail px,
}
`

func TestParseProfiles(t *testing.T) {
	profs, err := ParseProfiles(sampleProfile)
	require.NoError(t, err)
	require.Len(t, profs, 1)

	p := profs[0]
	assert.Equal(t, "stalwart-mail", p.Name)
	assert.Equal(t, "/opt/stalwart/bin/stalwart", p.Attach)
	assert.True(t, p.HasFlag(FlagAttachDisconnected))
	require.Len(t, p.Directives, 7)

	assert.Equal(t, DirectiveInclude, p.Directives[0].Kind)
	assert.Equal(t, "abstractions/base", p.Directives[0].Include)

	net := p.Directives[1]
	require.Equal(t, DirectiveNetwork, net.Kind)
	assert.Equal(t, types.FamilyInet, net.Network.Family)
	assert.Equal(t, types.TransportStream, net.Network.Transport)
	assert.False(t, net.Network.Bind)

	bind := p.Directives[2]
	require.Equal(t, DirectiveNetwork, bind.Kind)
	assert.True(t, bind.Network.Bind)
	assert.Equal(t, 25, bind.Network.Port)

	file := p.Directives[3]
	require.Equal(t, DirectiveFile, file.Kind)
	assert.Equal(t, "/opt/stalwart/**", file.File.Pattern)
	assert.Equal(t, types.PermRead|types.PermWrite|types.PermLock, file.File.Perms)
	assert.False(t, file.File.Owner)

	owner := p.Directives[4]
	require.Equal(t, DirectiveFile, owner.Kind)
	assert.True(t, owner.File.Owner)

	exec := p.Directives[5]
	assert.Equal(t, types.PermRead|types.PermExecInherit, exec.File.Perms)

	trans := p.Directives[6]
	assert.Equal(t, types.PermExecTransition, trans.File.Perms)
}

func TestParseBareAttachmentHeader(t *testing.T) {
	profs, err := ParseProfiles("/usr/sbin/ntpd {\n  /etc/ntp.conf r,\n}\n")
	require.NoError(t, err)
	require.Len(t, profs, 1)
	assert.Equal(t, "/usr/sbin/ntpd", profs[0].Name)
	assert.Equal(t, "/usr/sbin/ntpd", profs[0].Attach)
	assert.Empty(t, profs[0].Flags)
}

func TestParseMultipleProfiles(t *testing.T) {
	src := `
profile one /bin/one {
  /tmp/** rw,
}
profile two /bin/two {
  network inet dgram,
}
`
	profs, err := ParseProfiles(src)
	require.NoError(t, err)
	require.Len(t, profs, 2)
	assert.Equal(t, "one", profs[0].Name)
	assert.Equal(t, "two", profs[1].Name)
}

func TestParseRejectsUnknownDirective(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"typo'd rule", "profile p /bin/p {\n  netwrok inet stream,\n}", "unknown directive"},
		{"missing comma", "profile p /bin/p {\n  /tmp/** rw\n}", "missing trailing comma"},
		{"unknown perm letter", "profile p /bin/p {\n  /tmp/** rz,\n}", "unknown permission"},
		{"both exec modes", "profile p /bin/p {\n  /bin/x ixpx,\n}", "conflicting execute modes"},
		{"relative pattern", "profile p /bin/p {\n  tmp/x r,\n}", "unknown directive"},
		{"unknown flag", "profile p /bin/p flags=(enforce_hard) {\n  /tmp/** r,\n}", "unknown profile flag"},
		{"missing brace", "profile p /bin/p {\n  /tmp/** r,\n", "missing closing brace"},
		{"garbage network token", "profile p /bin/p {\n  network inet stream listen,\n}", "unexpected token"},
		{"bad port token", "profile p /bin/p {\n  network inet stream bind port abc,\n}", "invalid port"},
		{"no header", "/tmp/** rw,\n", "expected profile header"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProfiles(tt.src)
			require.Error(t, err)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Contains(t, pe.Error(), tt.want)
			assert.Greater(t, pe.Line, 0)
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := ParseProfiles("profile p /bin/p {\n    bogus directive,\n}")
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Line)
	assert.Equal(t, 5, pe.Column)
}

func TestParseFragment(t *testing.T) {
	ds, err := ParseFragment("# shared base rules\n/lib/** r,\n/dev/null rw,\n")
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.Equal(t, "/lib/**", ds[0].File.Pattern)

	_, err = ParseFragment("profile nested /bin/x {\n}\n")
	require.Error(t, err)
}

func TestParseNetworkVariants(t *testing.T) {
	src := `profile p /bin/p {
  network,
  network inet,
  network dgram,
  network inet6 stream bind,
}`
	profs, err := ParseProfiles(src)
	require.NoError(t, err)
	ds := profs[0].Directives
	require.Len(t, ds, 4)

	assert.Equal(t, types.FamilyAny, ds[0].Network.Family)
	assert.Equal(t, types.TransportAny, ds[0].Network.Transport)

	assert.Equal(t, types.FamilyInet, ds[1].Network.Family)
	assert.Equal(t, types.TransportAny, ds[1].Network.Transport)

	assert.Equal(t, types.FamilyAny, ds[2].Network.Family)
	assert.Equal(t, types.TransportDgram, ds[2].Network.Transport)

	require.True(t, ds[3].Network.Bind)
	assert.Equal(t, 0, ds[3].Network.Port)
}
