// Package message implements the client message plane: a
// tagged union of typed control messages routed over either the reliable
// or unreliable channel, each carrying a monotonically increasing 32-bit
// id from the local sender's counter.
package message

// Kind tags a message's payload shape and routing. Client-to-server and
// server-to-client kinds share one numbering space; direction is implied
// by which process sends it.
type Kind uint16

const (
	// Client → server.
	KindKeyboard Kind = iota
	KindMouseButton
	KindMouseWheel
	KindMouseMotion
	KindMultigesture
	KindKeyboardState
	KindDimensions
	KindStartStreaming
	KindStopStreaming
	KindBitrate
	KindUDPPing
	KindTCPPing
	KindNack
	KindNackBitarray
	KindIframeRequest
	KindStreamResetRequest
	KindDiscoveryRequest
	KindOpenURL
	KindClipboardChunk
	KindFileMetadata
	KindFileData
	KindFileDrag
	KindFileUploadCancel
	KindInteractionMode
	KindQuit

	// Server → client.
	KindPong
	KindAudioFrequency
	KindWindowTitle
	KindOpenURI
	KindFullscreen
	KindFileGroupEnd
	KindNotification
	KindInitiateUpload
)

func (k Kind) String() string {
	switch k {
	case KindKeyboard:
		return "keyboard"
	case KindMouseButton:
		return "mouse_button"
	case KindMouseWheel:
		return "mouse_wheel"
	case KindMouseMotion:
		return "mouse_motion"
	case KindMultigesture:
		return "multigesture"
	case KindKeyboardState:
		return "keyboard_state"
	case KindDimensions:
		return "dimensions"
	case KindStartStreaming:
		return "start_streaming"
	case KindStopStreaming:
		return "stop_streaming"
	case KindBitrate:
		return "bitrate"
	case KindUDPPing:
		return "udp_ping"
	case KindTCPPing:
		return "tcp_ping"
	case KindNack:
		return "nack"
	case KindNackBitarray:
		return "nack_bitarray"
	case KindIframeRequest:
		return "iframe_request"
	case KindStreamResetRequest:
		return "stream_reset_request"
	case KindDiscoveryRequest:
		return "discovery_request"
	case KindOpenURL:
		return "open_url"
	case KindClipboardChunk:
		return "clipboard_chunk"
	case KindFileMetadata:
		return "file_metadata"
	case KindFileData:
		return "file_data"
	case KindFileDrag:
		return "file_drag"
	case KindFileUploadCancel:
		return "file_upload_cancel"
	case KindInteractionMode:
		return "interaction_mode"
	case KindQuit:
		return "quit"
	case KindPong:
		return "pong"
	case KindAudioFrequency:
		return "audio_frequency"
	case KindWindowTitle:
		return "window_title"
	case KindOpenURI:
		return "open_uri"
	case KindFullscreen:
		return "fullscreen"
	case KindFileGroupEnd:
		return "file_group_end"
	case KindNotification:
		return "notification"
	case KindInitiateUpload:
		return "initiate_upload"
	default:
		return "unknown"
	}
}

// IsReliable reports whether kind is routed over the reliable channel.
// Only clipboard and file traffic takes the reliable path.
// Pong is the one exception this lookup can't express: it always echoes
// back over whichever channel its Ping arrived on, so callers answering a
// ping must route by origin rather than consulting IsReliable.
func IsReliable(k Kind) bool {
	switch k {
	case KindClipboardChunk, KindFileMetadata, KindFileData, KindFileGroupEnd,
		KindFileDrag, KindFileUploadCancel, KindInitiateUpload:
		return true
	default:
		return false
	}
}
