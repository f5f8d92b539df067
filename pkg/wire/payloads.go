package wire

// Resource kind categories.
const (
	KindImage = "image"
	KindAudio = "audio"
	KindFile  = "file"
)

// Media formats the performer client is expected to render. Sent to the
// client inside the handshake ack so it can refuse unsupported uploads early.
var (
	SupportedImageFormats = []string{"jpg", "png", "gif", "webp"}
	SupportedAudioFormats = []string{"mp3", "wav", "ogg"}
)

// HandshakeRequest is the payload of a handshake packet.
type HandshakeRequest struct {
	// Version is the client's protocol version string (e.g. "1.0").
	Version string `json:"version"`
	// Token is the shared secret, when the server requires one.
	Token string `json:"token,omitempty"`
	// Client carries free-form client metadata (name, renderer, platform).
	Client map[string]any `json:"client,omitempty"`
}

// HandshakeAckPayload is the payload of a handshake.ack packet.
type HandshakeAckPayload struct {
	// SessionID is the session identity minted for this connection.
	SessionID string `json:"sessionId"`
	// UserID is the user identity minted for this connection.
	UserID string `json:"userId"`
	// Config communicates the server's capability limits.
	Config CapabilityConfig `json:"config"`
}

// CapabilityConfig enumerates the protocol capability limits a client must
// respect for the lifetime of its session.
type CapabilityConfig struct {
	// MaxMessageLength bounds the text length of a single input.message.
	MaxMessageLength int `json:"maxMessageLength"`
	// SupportedImageFormats lists renderable image formats.
	SupportedImageFormats []string `json:"supportedImageFormats"`
	// SupportedAudioFormats lists playable audio formats.
	SupportedAudioFormats []string `json:"supportedAudioFormats"`
	// MaxInlineBytes is the threshold at or below which media is embedded
	// inline in packets instead of being stored and fetched by URL.
	MaxInlineBytes int64 `json:"maxInlineBytes"`
	// ResourceBaseURL is the base URL of the resource endpoint.
	ResourceBaseURL string `json:"resourceBaseUrl"`
}

// MessagePayload is the body of an input.message packet.
type MessagePayload struct {
	// Text is what the viewer typed.
	Text string `json:"text"`
}

// TouchPayload is the body of an input.touch packet.
type TouchPayload struct {
	// Area names the model region that was touched, when the client maps
	// coordinates to hit areas itself.
	Area string `json:"area,omitempty"`
	// X and Y are normalized touch coordinates.
	X float64 `json:"x,omitempty"`
	Y float64 `json:"y,omitempty"`
}

// ShortcutPayload is the body of an input.shortcut packet.
type ShortcutPayload struct {
	// Name identifies the triggered shortcut.
	Name string `json:"name"`
}

// PrepareRequest is the payload of a resource.prepare packet.
type PrepareRequest struct {
	// Kind is the semantic category (image/audio/file).
	Kind string `json:"kind"`
	// Mime is the declared content type.
	Mime string `json:"mime"`
	// Size is the client's size hint in bytes, used for eviction headroom.
	Size int64 `json:"size,omitempty"`
	// SHA256 is the client's digest hint. Advisory only; the server reports
	// only digests it computed itself.
	SHA256 string `json:"sha256,omitempty"`
}

// UploadDescriptor tells the client how to deliver the bytes for a prepared
// resource out-of-band from the control channel.
type UploadDescriptor struct {
	// Method is the HTTP method to use ("PUT").
	Method string `json:"method"`
	// URL is the fully-formed upload target.
	URL string `json:"url"`
	// Headers are required request headers (authorization, when configured).
	Headers map[string]string `json:"headers,omitempty"`
}

// PrepareAck is the payload answering a resource.prepare packet.
type PrepareAck struct {
	// RID is the allocated resource identifier.
	RID string `json:"rid"`
	// Upload describes how to deliver the bytes.
	Upload UploadDescriptor `json:"upload"`
	// Resource describes the pending entry.
	Resource *ResourceDescriptor `json:"resource"`
}

// CommitRequest is the payload of a resource.commit packet.
type CommitRequest struct {
	// RID identifies the prepared resource.
	RID string `json:"rid"`
	// Size optionally overrides the recorded size with the byte count
	// observed at upload time.
	Size *int64 `json:"size,omitempty"`
}

// ResourceRequest is the payload of resource.get and resource.release.
type ResourceRequest struct {
	// RID identifies the resource.
	RID string `json:"rid"`
}

// ResourceAck is the payload answering resource.commit and resource.get.
type ResourceAck struct {
	// Resource describes the entry.
	Resource *ResourceDescriptor `json:"resource"`
}

// ReleaseAck is the payload answering a resource.release packet.
type ReleaseAck struct {
	// RID identifies the resource.
	RID string `json:"rid"`
	// Released reports whether the entry and its file were removed.
	Released bool `json:"released"`
}

// ProgressPayload is the advisory body of a resource.progress packet.
type ProgressPayload struct {
	// RID identifies the resource being transferred.
	RID string `json:"rid,omitempty"`
	// Loaded is the byte count transferred so far.
	Loaded int64 `json:"loaded,omitempty"`
	// Total is the expected total byte count.
	Total int64 `json:"total,omitempty"`
}

// ResourceDescriptor describes a stored or pending resource as exposed on the
// wire. URL is present only once the resource is ready to fetch.
type ResourceDescriptor struct {
	// RID is the resource identifier.
	RID string `json:"rid"`
	// Kind is the semantic category (image/audio/file).
	Kind string `json:"kind"`
	// Mime is the content type.
	Mime string `json:"mime"`
	// Size is the byte count, authoritative once the resource is ready.
	Size int64 `json:"size"`
	// SHA256 is the server-computed content digest, when known.
	SHA256 string `json:"sha256,omitempty"`
	// URL is where the bytes can be fetched, only for ready resources.
	URL string `json:"url,omitempty"`
}

// Reference is the result of registering media with the broker: either an
// inline data URL (small payloads, nothing persisted) or a pointer to a
// stored resource.
type Reference struct {
	// Inline is a data:<mime>;base64 URL embedding the bytes directly.
	Inline string `json:"inline,omitempty"`
	// RID identifies the stored resource (pointer form only).
	RID string `json:"rid,omitempty"`
	// URL is where the stored bytes can be fetched (pointer form only).
	URL string `json:"url,omitempty"`
	// Mime is the content type.
	Mime string `json:"mime"`
	// Size is the byte count of the referenced content.
	Size int64 `json:"size"`
	// SHA256 is the content digest.
	SHA256 string `json:"sha256"`
}

// IsInline reports whether the reference embeds its bytes directly.
func (r Reference) IsInline() bool {
	return r.Inline != ""
}
