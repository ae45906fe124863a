// Package console provides the embedded web console for Aether.
//
// The console is a single HTML page that opens a WebSocket to /ws, lets
// the user type command frames and shows every frame the server sends
// back, including broadcast deliveries. It is embedded at compile time so
// the server binary has no external asset files.
//
// The embedded assets are served by the server package at the root path ("/").
package console

import "embed"

// Assets is an embedded filesystem containing the console page.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Console page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
