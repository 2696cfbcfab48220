package bridge

import (
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/l7mp/dynset/pkg/delta"
	"github.com/l7mp/dynset/pkg/stream"
)

type watchBridge struct {
	*stream.Node[runtime.Object]
	byKey map[string]snapshotEntry[runtime.Object]
}

// FromWatch adapts a Kubernetes watch into a reactive set keyed by
// namespace/name. Watch event types map onto the delta algebra leniently,
// the way an informer treats them: an Added for a known key degrades to an
// update, a Modified for an unknown key to an add, and a Deleted for an
// unknown key is ignored, so re-listed or resynced feeds stay well-formed.
// Bookmarks are skipped. A watch.Error fails the set; closing the watch
// channel retires every lifetime and leaves the set open.
//
// The bridge consumes the watch until its channel closes; stopping the watch
// is the caller's business.
func FromWatch(exec *stream.Executor, w watch.Interface, opts ...stream.Options) stream.Set[runtime.Object] {
	b := &watchBridge{
		Node:  stream.NewNode[runtime.Object](exec, "watch", opts...),
		byKey: make(map[string]snapshotEntry[runtime.Object]),
	}

	go func() {
		for ev := range w.ResultChan() {
			ev := ev
			exec.Do(func() { b.event(ev) })
		}
		exec.Do(func() {
			b.byKey = make(map[string]snapshotEntry[runtime.Object])
			b.RetireAll()
		})
	}()

	return b
}

func (b *watchBridge) event(ev watch.Event) {
	switch ev.Type {
	case watch.Error:
		b.byKey = make(map[string]snapshotEntry[runtime.Object])
		b.Fail(delta.WrapUpstream(apierrors.FromObject(ev.Object)))
		return
	case watch.Bookmark:
		return
	}

	k, err := objectKey(ev.Object)
	if err != nil {
		b.Logger().Info("dropping watch event for unkeyable object", "type", ev.Type, "error", err.Error())
		return
	}

	entry, known := b.byKey[k]
	switch ev.Type {
	case watch.Added, watch.Modified:
		if known {
			entry.obj = ev.Object
			b.byKey[k] = entry
			b.Emit(delta.Batch[runtime.Object]{delta.NewUpdated(entry.lifetime, ev.Object)})
			return
		}
		l := delta.NewLifetime()
		b.byKey[k] = snapshotEntry[runtime.Object]{lifetime: l, obj: ev.Object}
		b.Emit(delta.Batch[runtime.Object]{delta.NewAdded(l, ev.Object)})
	case watch.Deleted:
		if !known {
			return
		}
		delete(b.byKey, k)
		b.Emit(delta.Batch[runtime.Object]{delta.NewDeleted[runtime.Object](entry.lifetime)})
	}
}

func objectKey(obj runtime.Object) (string, error) {
	accessor, err := meta.Accessor(obj)
	if err != nil {
		return "", err
	}
	if ns := accessor.GetNamespace(); ns != "" {
		return fmt.Sprintf("%s/%s", ns, accessor.GetName()), nil
	}
	return accessor.GetName(), nil
}
