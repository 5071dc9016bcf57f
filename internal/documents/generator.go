// Package documents renders signed permission waivers as PDF files and signs
// their digest so a stored waiver can later be shown to be unaltered.
package documents

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/charlesng35/youthtracker/pkg/logger"
	"github.com/charlesng35/youthtracker/pkg/metrics"
)

// DefaultTimeout bounds one waiver generation.
const DefaultTimeout = 30 * time.Second

// SignatureAlgorithm names the detached signature scheme.
const SignatureAlgorithm = "ed25519"

var (
	// ErrSignatureMismatch is returned when a waiver no longer matches its signature.
	ErrSignatureMismatch = errors.New("documents: signature mismatch")
	// ErrDigestMismatch is returned when a waiver no longer matches its recorded digest.
	ErrDigestMismatch = errors.New("documents: digest mismatch")
)

// WaiverData is everything printed on a waiver.
type WaiverData struct {
	RecordID     string
	SubjectName  string
	GuardianName string
	ActivityName string
	Description  string
	Location     string
	StartsAt     time.Time
	EndsAt       time.Time
	IsOvernight  bool
	Drivers      []string
	SignedBy     string
	SignedAt     time.Time
	IPAddress    string
	UserAgent    string
	SignaturePNG []byte
	Medical      string
}

// Artifact describes a generated waiver file.
type Artifact struct {
	Path          string    `json:"path"`
	FileName      string    `json:"file_name"`
	SignaturePath string    `json:"signature_path"`
	SHA256        string    `json:"sha256"`
	Signature     string    `json:"signature"`
	KeyID         string    `json:"key_id"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// Envelope is the detached signature written next to each waiver.
type Envelope struct {
	File        string    `json:"file"`
	SHA256      string    `json:"sha256"`
	Algorithm   string    `json:"algorithm"`
	Signature   string    `json:"signature"`
	KeyID       string    `json:"key_id"`
	PublicKey   string    `json:"public_key"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Config configures a Generator.
type Config struct {
	OutputDir    string
	SigningKey   ed25519.PrivateKey
	KeyID        string
	Organization string
	Timeout      time.Duration
	Clock        func() time.Time
}

// Generator renders and signs waivers.
type Generator struct {
	dir     string
	key     ed25519.PrivateKey
	keyID   string
	org     string
	timeout time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// NewGenerator validates cfg and prepares the output directory.
func NewGenerator(cfg Config) (*Generator, error) {
	if strings.TrimSpace(cfg.OutputDir) == "" {
		return nil, errors.New("documents: output directory is required")
	}
	if len(cfg.SigningKey) != ed25519.PrivateKeySize {
		return nil, errors.New("documents: ed25519 signing key is required")
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("documents: create output dir: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		sum := sha256.Sum256(cfg.SigningKey.Public().(ed25519.PublicKey))
		keyID = hex.EncodeToString(sum[:8])
	}
	org := strings.TrimSpace(cfg.Organization)
	if org == "" {
		org = "Youth Program"
	}

	return &Generator{
		dir:     cfg.OutputDir,
		key:     cfg.SigningKey,
		keyID:   keyID,
		org:     org,
		timeout: timeout,
		now:     now,
		log:     logger.WithModule("documents"),
	}, nil
}

// PublicKey exposes the verification key.
func (g *Generator) PublicKey() ed25519.PublicKey {
	return g.key.Public().(ed25519.PublicKey)
}

// KeyID reports the identifier recorded with every signature.
func (g *Generator) KeyID() string {
	return g.keyID
}

// Generate renders the waiver, writes it and its detached signature to disk
// and returns the artifact. Nothing is left on disk when an error is returned.
func (g *Generator) Generate(ctx context.Context, data WaiverData) (artifact *Artifact, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	started := g.now()
	defer func() {
		result := "success"
		if err != nil {
			result = "failure"
		}
		metrics.DocumentsGenerated.WithLabelValues(result).Inc()
		metrics.DocumentGenerationSeconds.Observe(time.Since(started).Seconds())
	}()

	if strings.TrimSpace(data.SubjectName) == "" || strings.TrimSpace(data.ActivityName) == "" {
		return nil, errors.New("documents: subject and activity names are required")
	}

	content, err := g.render(data, started)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("documents: %w", err)
	}

	digest := sha256.Sum256(content)
	signature := ed25519.Sign(g.key, digest[:])

	name := fmt.Sprintf("waiver_%s.pdf", ulid.Make().String())
	art := &Artifact{
		Path:          filepath.Join(g.dir, name),
		FileName:      name,
		SignaturePath: filepath.Join(g.dir, name+".sig.json"),
		SHA256:        hex.EncodeToString(digest[:]),
		Signature:     base64.StdEncoding.EncodeToString(signature),
		KeyID:         g.keyID,
		GeneratedAt:   started.UTC(),
	}

	envelope, err := json.MarshalIndent(Envelope{
		File:        name,
		SHA256:      art.SHA256,
		Algorithm:   SignatureAlgorithm,
		Signature:   art.Signature,
		KeyID:       art.KeyID,
		PublicKey:   base64.StdEncoding.EncodeToString(g.PublicKey()),
		GeneratedAt: art.GeneratedAt,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("documents: encode signature: %w", err)
	}

	if err := os.WriteFile(art.Path, content, 0o640); err != nil {
		return nil, fmt.Errorf("documents: write waiver: %w", err)
	}
	if err := os.WriteFile(art.SignaturePath, envelope, 0o640); err != nil {
		g.Remove(art)
		return nil, fmt.Errorf("documents: write signature: %w", err)
	}
	if err := ctx.Err(); err != nil {
		g.Remove(art)
		return nil, fmt.Errorf("documents: %w", err)
	}

	g.log.Debug("waiver generated", zap.String("file", name), zap.String("record_id", data.RecordID))
	return art, nil
}

// Remove deletes an artifact and its signature, ignoring missing files.
func (g *Generator) Remove(art *Artifact) {
	if art == nil {
		return
	}
	for _, path := range []string{art.Path, art.SignaturePath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			g.log.Warn("failed to remove waiver artifact", zap.String("path", path), zap.Error(err))
		}
	}
}

// Verify checks a stored waiver against its detached signature using pub.
func Verify(path string, pub ed25519.PublicKey) (*Envelope, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("documents: read waiver: %w", err)
	}
	raw, err := os.ReadFile(path + ".sig.json")
	if err != nil {
		return nil, fmt.Errorf("documents: read signature: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("documents: decode signature: %w", err)
	}

	digest := sha256.Sum256(content)
	if hex.EncodeToString(digest[:]) != env.SHA256 {
		return &env, ErrDigestMismatch
	}
	sig, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil {
		return &env, fmt.Errorf("documents: decode signature bytes: %w", err)
	}
	if !ed25519.Verify(pub, digest[:], sig) {
		return &env, ErrSignatureMismatch
	}
	return &env, nil
}

func (g *Generator) render(data WaiverData, generatedAt time.Time) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetTitle("Parental Permission Waiver", true)
	pdf.SetAuthor(g.org, true)
	pdf.SetCreationDate(generatedAt)
	pdf.SetMargins(18, 18, 18)
	pdf.SetAutoPageBreak(true, 18)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr("Parental Permission Waiver"), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, tr(g.org), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	field := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(45, 7, tr(label), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 7, tr(value), "", "L", false)
	}

	field("Participant:", data.SubjectName)
	field("Parent/Guardian:", data.GuardianName)
	field("Activity:", data.ActivityName)
	field("Location:", data.Location)
	field("Starts:", formatTime(data.StartsAt))
	field("Ends:", formatTime(data.EndsAt))
	if data.IsOvernight {
		field("Overnight:", "Yes")
	}
	if len(data.Drivers) > 0 {
		field("Drivers:", strings.Join(data.Drivers, ", "))
	}
	pdf.Ln(3)

	if desc := strings.TrimSpace(data.Description); desc != "" {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, tr("Activity Description"), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, tr(desc), "", "L", false)
		pdf.Ln(3)
	}

	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 6, tr(fmt.Sprintf(
		"I, the undersigned parent or guardian, give permission for %s to participate in %s. "+
			"I understand the nature of the activity and accept the risks involved.",
		data.SubjectName, data.ActivityName)), "", "L", false)
	pdf.Ln(3)

	if medical := strings.TrimSpace(data.Medical); medical != "" {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, tr("Medical Information"), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, tr(medical), "", "L", false)
		pdf.Ln(3)
	}

	if len(data.SignaturePNG) > 0 {
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("signature", opts, bytes.NewReader(data.SignaturePNG))
		if pdf.Ok() {
			pdf.SetFont("Helvetica", "B", 11)
			pdf.CellFormat(0, 7, tr("Signature:"), "", 1, "L", false, 0, "")
			pdf.ImageOptions("signature", pdf.GetX(), pdf.GetY(), 70, 0, true, opts, 0, "")
			pdf.Ln(2)
		} else {
			g.log.Warn("signature image rejected, rendering without it", zap.Error(pdf.Error()), zap.String("record_id", data.RecordID))
			pdf.ClearError()
		}
	}

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, tr("Electronic Signature Record"), "", 1, "L", false, 0, "")
	field("Signed by:", data.SignedBy)
	field("Signed at:", formatTime(data.SignedAt))
	field("IP address:", data.IPAddress)
	field("User agent:", data.UserAgent)
	field("Record:", data.RecordID)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("documents: render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Monday, January 2 2006 3:04 PM MST")
}
