package dockerfile

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `# comment
FROM node:20-alpine
MAINTAINER ops@example.com
ENV APP_HOME=/srv/app LOG_LEVEL=info
ENV DATA_DIR /var/lib/data
RUN apk add --no-cache curl \
    git
EXPOSE 8080/tcp 5353/udp 9000
COPY . /srv/app
VOLUME ["/srv/app/uploads", "${DATA_DIR}"]
VOLUME $APP_HOME/cache
WORKDIR /srv/app
USER node
ENTRYPOINT ["node", "server.js"]
CMD ["--port", "8080"]
`

func TestParseSample(t *testing.T) {
	md, err := Parse(strings.NewReader(sample), nil)
	require.NoError(t, err)

	assert.Equal(t, "node:20-alpine", md.From)
	assert.Equal(t, "ops@example.com", md.Maintainer)
	assert.Equal(t, []string{"apk add --no-cache curl  git"}, md.Run)
	assert.Equal(t, map[string]string{"APP_HOME": "/srv/app", "LOG_LEVEL": "info", "DATA_DIR": "/var/lib/data"}, md.Env)
	assert.Equal(t, []Port{{"8080", "tcp"}, {"5353", "udp"}, {"9000", ""}}, md.Ports)
	assert.Equal(t, map[string]string{"8080": "tcp", "5353": "udp", "9000": ""}, md.PortMap())
	assert.Equal(t, "8080", md.InnerPort())
	assert.Equal(t, []string{"/srv/app/uploads", "/var/lib/data", "/srv/app/cache"}, md.Volumes)
	assert.Equal(t, "/srv/app/uploads", md.VolumeMountPath())
	assert.Equal(t, map[string]string{".": "/srv/app"}, md.Copy)
	assert.Equal(t, "/srv/app", md.Workdir)
	assert.Equal(t, "node", md.User)
	assert.Equal(t, `["node", "server.js"]`, md.Entrypoint)
	assert.Equal(t, `["--port", "8080"]`, md.Cmd)
}

func TestRelativeVolumeIsFatal(t *testing.T) {
	_, err := Parse(strings.NewReader("FROM alpine\nVOLUME data\n"), nil)
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 2, perr.Line)
	assert.Equal(t, "VOLUME", perr.Instruction)
}

func TestUnresolvedVolumeVariableIsFatal(t *testing.T) {
	_, err := Parse(strings.NewReader("FROM alpine\nVOLUME [\"${MISSING}\"]\n"), nil)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Reason, "MISSING")
}

func TestVariableResolvingToRelativeIsFatal(t *testing.T) {
	_, err := Parse(strings.NewReader("ENV DIR data\nVOLUME $DIR\n"), nil)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Reason, "absolute")
}

func TestBuildEnvFeedsVolumes(t *testing.T) {
	md, err := Parse(strings.NewReader("FROM alpine\nVOLUME ${MOUNT}\n"), map[string]string{"MOUNT": "/mnt/data"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/mnt/data"}, md.Volumes)
}

func TestEmptyDockerfile(t *testing.T) {
	md, err := Parse(strings.NewReader("# nothing\n\n"), nil)
	require.NoError(t, err)
	assert.Empty(t, md.InnerPort())
	assert.Empty(t, md.VolumeMountPath())
}

func TestLowercaseKeywords(t *testing.T) {
	md, err := Parse(strings.NewReader("from alpine\nexpose 80\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, "alpine", md.From)
	assert.Equal(t, "80", md.InnerPort())
}

func TestTabSeparatedInstructions(t *testing.T) {
	src := "FROM\tgolang:1.24\nEXPOSE\t8080\nENV\tGOPATH\t/go\nVOLUME\t/data\nWORKDIR\t/src\n"
	md, err := Parse(strings.NewReader(src), nil)
	require.NoError(t, err)

	assert.Equal(t, "golang:1.24", md.From)
	assert.Equal(t, "8080", md.InnerPort())
	assert.Equal(t, map[string]string{"GOPATH": "/go"}, md.Env)
	assert.Equal(t, []string{"/data"}, md.Volumes)
	assert.Equal(t, "/src", md.Workdir)
}
