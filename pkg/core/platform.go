package core

// PlatformInfo contains device and platform details
type PlatformInfo struct {
	Platform     string `json:"platform"`               // android
	OSVersion    string `json:"osVersion"`              // e.g. "14"
	DeviceName   string `json:"deviceName"`             // e.g. "Pixel 8"
	DeviceID     string `json:"deviceId"`               // adb serial
	IsSimulator  bool   `json:"isSimulator"`            // emulator vs real device
	ScreenWidth  int    `json:"screenWidth,omitempty"`  // Screen width in pixels
	ScreenHeight int    `json:"screenHeight,omitempty"` // Screen height in pixels
	AppID        string `json:"appId,omitempty"`        // Package name
}
