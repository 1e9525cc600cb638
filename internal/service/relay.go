package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// RelayMailer delivers mail by calling tools on the external MCP mail
// relay. The relay is multi-tenant and dispatches on the Origin header, so
// the configured tenant origin is presented on every request.
type RelayMailer struct {
	url    string
	origin string
	logger *slog.Logger

	mu     sync.Mutex
	client *client.Client
}

// NewRelayMailer creates a mailer backed by the MCP relay at url.
func NewRelayMailer(url, origin string, logger *slog.Logger) *RelayMailer {
	return &RelayMailer{url: url, origin: origin, logger: logger}
}

// SendCode calls the relay's send_email tool with the access code.
func (m *RelayMailer) SendCode(ctx context.Context, to, code string) error {
	result, err := m.callTool(ctx, "send_email", map[string]any{
		"to":      to,
		"subject": "Your Teleglass access code",
		"body":    fmt.Sprintf("Your one-time access code is %s. It expires in 10 minutes.", code),
	})
	if err != nil {
		return fmt.Errorf("relay send_email: %w", err)
	}
	if result.IsError {
		return fmt.Errorf("relay send_email: tool reported failure")
	}
	return nil
}

// PatchAlias updates a mailbox alias through the relay.
func (m *RelayMailer) PatchAlias(ctx context.Context, mailbox, alias string) error {
	result, err := m.callTool(ctx, "patch_alias", map[string]any{
		"mailbox": mailbox,
		"alias":   alias,
	})
	if err != nil {
		return fmt.Errorf("relay patch_alias: %w", err)
	}
	if result.IsError {
		return fmt.Errorf("relay patch_alias: tool reported failure")
	}
	return nil
}

// Close shuts down the relay connection if one was established.
func (m *RelayMailer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	c := m.client
	m.client = nil
	return c.Close()
}

func (m *RelayMailer) callTool(ctx context.Context, name string, args map[string]any) (*mcptypes.CallToolResult, error) {
	c, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	return c.CallTool(ctx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
}

// connect lazily establishes and initializes the MCP session; subsequent
// calls reuse it.
func (m *RelayMailer) connect(ctx context.Context) (*client.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return m.client, nil
	}

	var opts []transport.StreamableHTTPCOption
	if m.origin != "" {
		opts = append(opts, transport.WithHTTPHeaders(map[string]string{"Origin": m.origin}))
	}

	mcpClient, err := client.NewStreamableHttpClient(m.url, opts...)
	if err != nil {
		return nil, fmt.Errorf("create relay client: %w", err)
	}

	if err := mcpClient.GetTransport().Start(ctx); err != nil {
		return nil, fmt.Errorf("start relay transport: %w", err)
	}

	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: "2025-06-18",
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    "teleglass-gateway",
				Version: "1.0.0",
			},
		},
	}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		_ = mcpClient.Close()
		return nil, fmt.Errorf("initialize relay: %w", err)
	}

	m.logger.Info("connected to mail relay", "url", m.url)
	m.client = mcpClient
	return m.client, nil
}
