package version

// Build information set by ldflags
var (
	Version = "dev"     // Set by goreleaser: -X github.com/HybridEidolon/pso2-modpatcher/internal/version.Version={{.Version}}
	Commit  = "unknown" // Set by goreleaser: -X github.com/HybridEidolon/pso2-modpatcher/internal/version.Commit={{.Commit}}
	Date    = "unknown" // Set by goreleaser: -X github.com/HybridEidolon/pso2-modpatcher/internal/version.Date={{.Date}}
)
