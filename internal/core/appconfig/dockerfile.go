package appconfig

import (
	"fmt"
	"strings"
	"text/template"
)

// =============================================================================
// Dockerfile Rendering
// =============================================================================

// BuildSpec declares the two-stage image build: a builder stage that
// installs dependencies, and a runtime stage that copies only the installed
// artifacts plus application source to keep the final image small.
type BuildSpec struct {
	BaseImage      string // e.g. "python:3.12-slim"
	Requirements   string // dependency list file, e.g. "requirements.txt"
	ConfigFileName string // runtime config file name inside the image
	ConfigDir      string // directory the framework reads config from
	Entrypoint     string // application entry module, e.g. "app.py"
	Port           int
	HealthPath     string // health-check endpoint path
}

// DefaultBuildSpec returns the build used for the hosted front-end.
func DefaultBuildSpec() BuildSpec {
	return BuildSpec{
		BaseImage:      "python:3.12-slim",
		Requirements:   "requirements.txt",
		ConfigFileName: "config.toml",
		ConfigDir:      "/app/.streamlit",
		Entrypoint:     "app.py",
		Port:           8080,
		HealthPath:     "/_stcore/health",
	}
}

var dockerfileTemplate = template.Must(template.New("dockerfile").Parse(`# syntax=docker/dockerfile:1

FROM {{.BaseImage}} AS builder
WORKDIR /install
COPY {{.Requirements}} .
RUN pip install --no-cache-dir --prefix=/install/deps -r {{.Requirements}}

FROM {{.BaseImage}}
WORKDIR /app
COPY --from=builder /install/deps /usr/local
COPY . .
COPY {{.ConfigFileName}} {{.ConfigDir}}/{{.ConfigFileName}}

ENV PORT={{.Port}}
EXPOSE {{.Port}}

HEALTHCHECK --interval=10s --timeout=3s --retries=3 \
  CMD python -c "import urllib.request; urllib.request.urlopen('http://localhost:{{.Port}}{{.HealthPath}}')"

CMD ["streamlit", "run", "{{.Entrypoint}}"]
`))

// RenderDockerfile renders the two-stage Dockerfile for the given spec.
func RenderDockerfile(spec BuildSpec) (string, error) {
	if err := validateBuildSpec(spec); err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := dockerfileTemplate.Execute(&sb, spec); err != nil {
		return "", fmt.Errorf("render dockerfile: %w", err)
	}
	return sb.String(), nil
}

func validateBuildSpec(spec BuildSpec) error {
	if spec.BaseImage == "" {
		return fmt.Errorf("base image is required")
	}
	if spec.Entrypoint == "" {
		return fmt.Errorf("entrypoint is required")
	}
	if spec.Port < 1 || spec.Port > 65535 {
		return fmt.Errorf("invalid port %d", spec.Port)
	}
	if !strings.HasPrefix(spec.HealthPath, "/") {
		return fmt.Errorf("health path %q must start with /", spec.HealthPath)
	}
	return nil
}
