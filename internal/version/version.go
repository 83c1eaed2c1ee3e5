package version

// Version is overridden at link time with -ldflags "-X natsume/internal/version.Version=...".
var Version = "dev"
