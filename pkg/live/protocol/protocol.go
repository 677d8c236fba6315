// Package protocol defines the wire messages exchanged with the hosted
// conversational endpoint over the live websocket. Outbound media rides in
// realtimeInput envelopes as base64 chunks; inbound model output arrives as
// serverContent frames. The session is not usable for media until the
// endpoint acknowledges the setup message with setupComplete.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	// MimePCM16k is the outbound microphone format.
	MimePCM16k = "audio/pcm;rate=16000"

	// MimeJPEG is the outbound camera frame format.
	MimeJPEG = "image/jpeg"

	// ModalityAudio requests spoken responses from the model.
	ModalityAudio = "AUDIO"

	// DefaultInboundSampleRate is assumed when an inbound audio chunk's
	// mime type carries no rate parameter.
	DefaultInboundSampleRate = 24000
)

// DecodeError reports a malformed inbound frame.
type DecodeError struct {
	Message string
}

func (e *DecodeError) Error() string { return e.Message }

func malformed(format string, args ...any) *DecodeError {
	return &DecodeError{Message: fmt.Sprintf(format, args...)}
}

// Blob is an inline base64 media payload.
type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Part is one piece of a content turn: text or inline media.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// Content is a sequence of parts attributed to a role.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GenerationConfig carries the model response shape for the session.
type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

// SpeechConfig selects the synthesized voice.
type SpeechConfig struct {
	VoiceConfig *VoiceConfig `json:"voiceConfig,omitempty"`
}

// VoiceConfig names a prebuilt voice.
type VoiceConfig struct {
	PrebuiltVoiceConfig *PrebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

// PrebuiltVoiceConfig is the hosted endpoint's voice selector.
type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// Setup is the session configuration handshake payload.
type Setup struct {
	Model             string           `json:"model"`
	GenerationConfig  GenerationConfig `json:"generationConfig"`
	SystemInstruction *Content         `json:"systemInstruction,omitempty"`
}

// SetupMessage is the first outbound frame on a new connection.
type SetupMessage struct {
	Setup Setup `json:"setup"`
}

// NewSetupMessage builds the handshake frame for a session. voiceName may
// be empty for the endpoint default.
func NewSetupMessage(model, systemInstruction, voiceName string) SetupMessage {
	msg := SetupMessage{
		Setup: Setup{
			Model: model,
			GenerationConfig: GenerationConfig{
				ResponseModalities: []string{ModalityAudio},
			},
		},
	}
	if voiceName != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &SpeechConfig{
			VoiceConfig: &VoiceConfig{
				PrebuiltVoiceConfig: &PrebuiltVoiceConfig{VoiceName: voiceName},
			},
		}
	}
	if systemInstruction != "" {
		msg.Setup.SystemInstruction = &Content{
			Parts: []Part{{Text: systemInstruction}},
		}
	}
	return msg
}

// RealtimeInput carries streamed media chunks.
type RealtimeInput struct {
	MediaChunks []Blob `json:"mediaChunks"`
}

// RealtimeInputMessage is an outbound media frame.
type RealtimeInputMessage struct {
	RealtimeInput RealtimeInput `json:"realtimeInput"`
}

// NewAudioMessage wraps one s16le 16 kHz PCM frame for the wire.
func NewAudioMessage(pcm []byte) RealtimeInputMessage {
	return RealtimeInputMessage{
		RealtimeInput: RealtimeInput{
			MediaChunks: []Blob{{
				MIMEType: MimePCM16k,
				Data:     base64.StdEncoding.EncodeToString(pcm),
			}},
		},
	}
}

// NewVideoMessage wraps one compressed JPEG still for the wire.
func NewVideoMessage(jpeg []byte) RealtimeInputMessage {
	return RealtimeInputMessage{
		RealtimeInput: RealtimeInput{
			MediaChunks: []Blob{{
				MIMEType: MimeJPEG,
				Data:     base64.StdEncoding.EncodeToString(jpeg),
			}},
		},
	}
}

// ClientContent is a discrete (non-realtime) conversational turn.
type ClientContent struct {
	Turns        []Content `json:"turns"`
	TurnComplete bool      `json:"turnComplete"`
}

// ClientContentMessage is an outbound text turn.
type ClientContentMessage struct {
	ClientContent ClientContent `json:"clientContent"`
}

// NewTextMessage builds a complete user text turn.
func NewTextMessage(text string) ClientContentMessage {
	return ClientContentMessage{
		ClientContent: ClientContent{
			Turns: []Content{{
				Role:  "user",
				Parts: []Part{{Text: text}},
			}},
			TurnComplete: true,
		},
	}
}

// ServerContent is the model-output portion of an inbound frame.
type ServerContent struct {
	ModelTurn    *Content `json:"modelTurn,omitempty"`
	TurnComplete bool     `json:"turnComplete,omitempty"`
	Interrupted  bool     `json:"interrupted,omitempty"`
}

// ServerMessage is the envelope for every inbound frame.
type ServerMessage struct {
	SetupComplete json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *ServerContent  `json:"serverContent,omitempty"`
	ToolCall      json.RawMessage `json:"toolCall,omitempty"`
}

// IsSetupComplete reports whether this frame is the handshake ack.
func (m *ServerMessage) IsSetupComplete() bool {
	return len(m.SetupComplete) > 0
}

// DecodeServerMessage parses an inbound frame. An undecodable frame or one
// with no recognized field is a protocol violation.
func DecodeServerMessage(data []byte) (*ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, malformed("decode server frame: %v", err)
	}
	if !msg.IsSetupComplete() && msg.ServerContent == nil && len(msg.ToolCall) == 0 {
		return nil, malformed("server frame has no recognized field")
	}
	return &msg, nil
}

// InlineAudio extracts decoded PCM payloads and their declared sample rate
// from a model turn. Parts without audio are skipped.
func (c *ServerContent) InlineAudio() ([][]byte, int, error) {
	if c == nil || c.ModelTurn == nil {
		return nil, 0, nil
	}
	var chunks [][]byte
	rate := DefaultInboundSampleRate
	for _, part := range c.ModelTurn.Parts {
		if part.InlineData == nil || !strings.HasPrefix(part.InlineData.MIMEType, "audio/pcm") {
			continue
		}
		pcm, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return nil, 0, malformed("decode inline audio: %v", err)
		}
		if r := SampleRateFromMime(part.InlineData.MIMEType); r > 0 {
			rate = r
		}
		chunks = append(chunks, pcm)
	}
	return chunks, rate, nil
}

// Text concatenates the text parts of a model turn.
func (c *ServerContent) Text() string {
	if c == nil || c.ModelTurn == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range c.ModelTurn.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

// SampleRateFromMime parses the rate parameter out of an audio mime type
// like "audio/pcm;rate=24000". Returns 0 when absent or unparsable.
func SampleRateFromMime(mime string) int {
	for _, param := range strings.Split(mime, ";") {
		param = strings.TrimSpace(param)
		if !strings.HasPrefix(param, "rate=") {
			continue
		}
		rate, err := strconv.Atoi(strings.TrimPrefix(param, "rate="))
		if err != nil || rate <= 0 {
			return 0
		}
		return rate
	}
	return 0
}
