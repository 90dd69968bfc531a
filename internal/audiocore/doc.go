// Package audiocore moves capture audio through the listening pipeline.
//
//	Source -> Manager.ProcessFrame -> back buffer
//	                               -> VAD (transitions reported to the session)
//	                               -> wake-word detector
//	                               -> audio-data callback while streaming
//
// Sources live under sources/: a malgo capture device and a WAV/FLAC file
// reader. Both deliver mono 16-bit frames at 16 kHz.
package audiocore
