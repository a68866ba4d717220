/*
gwphys is a deterministic rigid body physics engine with lockstep frame synchronization.
All simulation state uses Q32.32 fixed point numbers, so every peer that steps the same
space with the same frames computes bit identical results.

Processes

A session has one authority and any number of clients. The authority collects the input
samples of the clients and emits one confirmed frame per tick. Each client steps its own
copy of the space with the confirmed frames. Clients exchange space checksums through the
authority to detect desynchronization. Both the authority and the clients can journal the
frames to a replay backend (filesystem or redis), and gwphys-replay re-simulates a journal
to find the first diverging tick.

Package gwphys

gwphys package exports the APIs most programs embedding the engine need. A program driving
its own space looks like bellow:

	import "github.com/xiaonanln/gwphys"

	func main() {
		sp := gwphys.NewSpace(gwphys.DefaultSettings())
		ball, _ := gwphys.NewSphere(gwphys.Half)
		sp.AddBody(gwphys.BodyDesc{Shape: ball, Position: gwphys.V3(gwphys.Zero, gwphys.FromInt(5), gwphys.Zero), Mass: gwphys.One})
		for i := 0; i < 60; i++ {
			sp.Step()
		}
	}

Configuration

The binaries read gwphys.ini, see gwphys.ini.sample for all options.
*/
package gwphys
