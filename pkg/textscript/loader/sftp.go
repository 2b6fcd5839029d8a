package loader

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/sambeau/textscript/pkg/log"
	"github.com/sambeau/textscript/pkg/textscript/evaluator"
	"github.com/sambeau/textscript/pkg/textscript/lexer"
)

// SFTPConfig describes how to reach an SFTP server.
type SFTPConfig struct {
	Addr           string // host:port
	User           string
	Password       string
	KeyFile        string
	Passphrase     string
	KnownHostsFile string // host keys are not checked when empty
	Timeout        time.Duration
}

// DialSFTP connects to an SFTP server over SSH.
func DialSFTP(cfg SFTPConfig) (*sftp.Client, io.Closer, error) {
	var auth []ssh.AuthMethod
	if cfg.KeyFile != "" {
		keyData, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, nil, err
		}
		var signer ssh.Signer
		if cfg.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(cfg.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyData)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("parsing key %s: %w", cfg.KeyFile, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, nil, errors.New("sftp: no password or key file given")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	config := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}
	if cfg.KnownHostsFile != "" {
		callback, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
		config.HostKeyCallback = callback
	}

	sshClient, err := ssh.Dial("tcp", cfg.Addr, config)
	if err != nil {
		return nil, nil, err
	}
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, err
	}
	return client, sshClient, nil
}

// SFTPLoader serves templates from a directory on an SFTP server.
type SFTPLoader struct {
	client *sftp.Client
	conn   io.Closer
	root   string
	cache  *cache[string]
	logger log.Logger
}

// SFTPOption configures an SFTPLoader.
type SFTPOption func(*SFTPLoader)

// WithSFTPCache sets the size and TTL of the content cache.
func WithSFTPCache(size int, ttl time.Duration) SFTPOption {
	return func(l *SFTPLoader) { l.cache = newCache[string](size, ttl) }
}

// WithSFTPLogger sets the logger for cache events.
func WithSFTPLogger(logger log.Logger) SFTPOption {
	return func(l *SFTPLoader) { l.logger = logger }
}

// WithConnection makes Close also close conn, usually the SSH client
// returned by DialSFTP.
func WithConnection(conn io.Closer) SFTPOption {
	return func(l *SFTPLoader) { l.conn = conn }
}

// NewSFTPLoader serves templates below root on the server behind client.
func NewSFTPLoader(client *sftp.Client, root string, opts ...SFTPOption) *SFTPLoader {
	if root == "" {
		root = "/"
	}
	l := &SFTPLoader{
		client: client,
		root:   path.Clean(root),
		cache:  newCache[string](DefaultCacheSize, DefaultCacheTTL),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *SFTPLoader) remote(rel string) string { return path.Join(l.root, rel) }

func (l *SFTPLoader) GetPath(_ *evaluator.TemplateContext, _ lexer.Span, name string) (string, error) {
	rel, err := cleanName(name)
	if err != nil {
		return "", err
	}
	if rel == "" {
		return "", nil
	}
	info, err := l.client.Stat(l.remote(rel))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", nil
	}
	return l.remote(rel), nil
}

func (l *SFTPLoader) Load(_ *evaluator.TemplateContext, _ lexer.Span, p string) (string, error) {
	if text, ok := l.cache.get(p); ok {
		l.logger.Trace("template cache hit", slog.String("path", p))
		return text, nil
	}
	f, err := l.client.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	text := string(data)
	l.cache.put(p, text)
	return text, nil
}

func (l *SFTPLoader) PathExists(_ *evaluator.TemplateContext, _ lexer.Span, p string, typ evaluator.PathType) bool {
	if !path.IsAbs(p) {
		rel, err := cleanName(p)
		if err != nil {
			return false
		}
		p = l.remote(rel)
	}
	info, err := l.client.Stat(p)
	if err != nil {
		return false
	}
	return entry{dir: info.IsDir()}.is(typ)
}

func (l *SFTPLoader) Enumerate(_ *evaluator.TemplateContext, _ lexer.Span, pat string, typ evaluator.PathType) ([]string, error) {
	pt, err := parsePattern(pat)
	if err != nil {
		return nil, err
	}
	start := l.remote(pt.dir)
	var entries []entry
	add := func(p string, dir bool) {
		if rel, ok := relative(l.root, p); ok {
			entries = append(entries, entry{name: rel, dir: dir})
		}
	}
	var walk func(dir string) error
	walk = func(dir string) error {
		infos, err := l.client.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, info := range infos {
			p := path.Join(dir, info.Name())
			add(p, info.IsDir())
			if pt.recursive && info.IsDir() {
				if err := walk(p); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(start); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return filter(entries, pt, typ), nil
}

func relative(root, p string) (string, bool) {
	if root == "/" {
		return p[1:], len(p) > 1
	}
	if len(p) <= len(root)+1 || p[:len(root)+1] != root+"/" {
		return "", false
	}
	return p[len(root)+1:], true
}

// Invalidate drops cached text for path, or all cached text when path is
// empty.
func (l *SFTPLoader) Invalidate(p string) { l.cache.remove(p) }

// Close closes the SFTP session and the connection given with
// WithConnection.
func (l *SFTPLoader) Close() error {
	err := l.client.Close()
	if l.conn != nil {
		if cerr := l.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
