package browser

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

type ChromeOptions struct {
	Headless    bool
	ExecPath    string
	UserDataDir string
	// Timeout bounds every single operation.
	Timeout time.Duration
	Args    []string
}

// Chrome drives a dedicated Chrome process. Its lifetime is independent of
// the contexts passed to its methods so a session can outlive the run that
// created it; only Close ends it.
type Chrome struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	timeout     time.Duration
	logger      *zap.Logger

	mu     sync.Mutex
	closed bool
}

type chromeNode struct {
	node *cdp.Node
}

func (n chromeNode) Describe() string {
	if id := n.node.AttributeValue("id"); id != "" {
		return n.node.LocalName + "#" + id
	}
	return n.node.LocalName
}

// NewChrome launches a browser. ctx bounds only the launch.
func NewChrome(ctx context.Context, opts ChromeOptions, logger *zap.Logger) (*Chrome, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Warnf),
	)

	stop := context.AfterFunc(ctx, tabCancel)
	err := chromedp.Run(tabCtx)
	stop()
	if err != nil {
		tabCancel()
		allocCancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: start chrome: %v", ErrInteraction, err)
	}

	return &Chrome{
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		timeout:     opts.Timeout,
		logger:      logger,
	}, nil
}

func allocatorOptions(opts ChromeOptions) []chromedp.ExecAllocatorOption {
	o := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	o = append(o,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(1920, 1080),
		chromedp.ModifyCmdFunc(setProcessGroup),
	)
	if opts.Headless {
		o = append(o, chromedp.DisableGPU)
	}
	if runtime.GOOS == "linux" {
		o = append(o, chromedp.NoSandbox)
	}
	if opts.ExecPath != "" {
		o = append(o, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserDataDir != "" {
		o = append(o, chromedp.UserDataDir(opts.UserDataDir))
	}
	for _, a := range opts.Args {
		o = append(o, chromedp.Flag(a, true))
	}
	return o
}

// run executes actions on the tab, bounded by both the operation timeout and
// the caller's ctx. Cancelling ctx aborts the operation, not the browser.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	opCtx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrInteraction, err)
	}
	return nil
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, chromedp.Navigate(url))
}

func (c *Chrome) Find(ctx context.Context, selector string) ([]Element, error) {
	var nodes []*cdp.Node
	if err := c.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	return wrapNodes(nodes), nil
}

func (c *Chrome) FindWithin(ctx context.Context, parent Element, selector string) ([]Element, error) {
	p, err := c.node(parent)
	if err != nil {
		return nil, err
	}
	var nodes []*cdp.Node
	if err := c.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0), chromedp.FromNode(p))); err != nil {
		return nil, err
	}
	return wrapNodes(nodes), nil
}

func (c *Chrome) Read(ctx context.Context, el Element, attr string) (string, bool, error) {
	n, err := c.node(el)
	if err != nil {
		return "", false, err
	}
	ids := []cdp.NodeID{n.NodeID}

	var (
		value string
		ok    = true
	)
	switch attr {
	case "":
		err = c.run(ctx, chromedp.Text(ids, &value, chromedp.ByNodeID))
	case "value":
		err = c.run(ctx, chromedp.Value(ids, &value, chromedp.ByNodeID))
	default:
		err = c.run(ctx, chromedp.AttributeValue(ids, attr, &value, &ok, chromedp.ByNodeID))
	}
	if err != nil {
		return "", false, err
	}
	return value, ok, nil
}

func (c *Chrome) Click(ctx context.Context, el Element) error {
	n, err := c.node(el)
	if err != nil {
		return err
	}
	return c.run(ctx, chromedp.MouseClickNode(n))
}

func (c *Chrome) Type(ctx context.Context, el Element, text string) error {
	n, err := c.node(el)
	if err != nil {
		return err
	}
	ids := []cdp.NodeID{n.NodeID}
	return c.run(ctx,
		chromedp.SetValue(ids, "", chromedp.ByNodeID),
		chromedp.SendKeys(ids, text, chromedp.ByNodeID),
	)
}

func (c *Chrome) WaitUntil(ctx context.Context, cond Condition, timeout time.Duration) (bool, error) {
	return Poll(ctx, cond, timeout, pollInterval)
}

func (c *Chrome) RunScript(ctx context.Context, script string, args ...Element) error {
	if len(args) == 0 {
		return c.run(ctx, chromedp.Evaluate("("+script+")()", nil))
	}
	nodes := make([]*cdp.Node, 0, len(args))
	for _, a := range args {
		n, err := c.node(a)
		if err != nil {
			return err
		}
		nodes = append(nodes, n)
	}
	return c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		callArgs := make([]*cdpruntime.CallArgument, 0, len(nodes))
		var this cdpruntime.RemoteObjectID
		for i, n := range nodes {
			obj, err := dom.ResolveNode().WithNodeID(n.NodeID).Do(ctx)
			if err != nil {
				return fmt.Errorf("resolve node: %w", err)
			}
			if i == 0 {
				this = obj.ObjectID
			}
			callArgs = append(callArgs, &cdpruntime.CallArgument{ObjectID: obj.ObjectID})
		}
		_, exc, err := cdpruntime.CallFunctionOn(script).
			WithObjectID(this).
			WithArguments(callArgs).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		return nil
	}))
}

// Close shuts the browser down. It is safe to call more than once.
func (c *Chrome) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := chromedp.Cancel(c.ctx)
	c.cancel()
	c.allocCancel()
	if err != nil && err != context.Canceled {
		c.logger.Debug("chrome shutdown", zap.Error(err))
	}
	return nil
}

func (c *Chrome) node(el Element) (*cdp.Node, error) {
	n, ok := el.(chromeNode)
	if !ok || n.node == nil {
		return nil, fmt.Errorf("%w: foreign element %T", ErrInteraction, el)
	}
	return n.node, nil
}

func wrapNodes(nodes []*cdp.Node) []Element {
	out := make([]Element, len(nodes))
	for i, n := range nodes {
		out[i] = chromeNode{node: n}
	}
	return out
}
