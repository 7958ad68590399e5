package banner

import (
	"fmt"
)

const banner = `
 ██████╗██╗  ██╗ █████╗ ████████╗██╗     ███████╗██████╗  ██████╗ ███████╗██████╗
██╔════╝██║  ██║██╔══██╗╚══██╔══╝██║     ██╔════╝██╔══██╗██╔════╝ ██╔════╝██╔══██╗
██║     ███████║███████║   ██║   ██║     █████╗  ██║  ██║██║  ███╗█████╗  ██████╔╝
██║     ██╔══██║██╔══██║   ██║   ██║     ██╔══╝  ██║  ██║██║   ██║██╔══╝  ██╔══██╗
╚██████╗██║  ██║██║  ██║   ██║   ███████╗███████╗██████╔╝╚██████╔╝███████╗██║  ██║
 ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝   ╚══════╝╚══════╝╚═════╝  ╚═════╝ ╚══════╝╚═╝  ╚═╝
`

// Print prints the startup banner with runtime info and a short
// endpoint summary.
func Print(addr, dbPath, sources, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if sources != "" {
		fmt.Printf("Config sources: %s\n", sources)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("GET  /v1/threads/{id}/messages?name=<display> - Open a thread (seeds greeting)")
	fmt.Println("POST /v1/threads/{id}/messages - Send a message (JSON: body, attachments)")
	fmt.Println("GET  /v1/threads/{id}/typing - Typing indicator")
	fmt.Println("GET  /v1/export | POST /v1/import - Snapshot backup and restore")
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -H 'Authorization: Bearer <key>' 'http://localhost%s/v1/threads/p1/messages?name=Rajesh'\n", addr)
	fmt.Printf("curl -H 'Authorization: Bearer <key>' -X POST 'http://localhost%s/v1/threads/p1/messages' -d '{\"body\":\"Hello\"}'\n", addr)
}
