package backend

import (
	"sync"

	"github.com/lesaffrejb-beep/drone-night-clip/internal/camera"
)

// CameraRig is the mutable camera handle the hosting render backend exposes.
// The conductor is its single writer; hosts read the pose from whatever
// thread drives their projection.
type CameraRig struct {
	mu   sync.RWMutex
	pose camera.Pose
}

func NewCameraRig() *CameraRig { return &CameraRig{} }

func (r *CameraRig) SetPose(p camera.Pose) {
	r.mu.Lock()
	r.pose = p
	r.mu.Unlock()
}

func (r *CameraRig) Pose() camera.Pose {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pose
}
