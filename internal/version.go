package internal

// Version is reported by both binaries and shown in the client menu.
const Version = "0.3.0"
