// Package overlay renders the on-page acknowledgement shown after a positive
// classification. The widget is mounted by evaluating a script inside the
// page so host-page styles stay isolated behind a shadow root.
package overlay

// ElementID identifies the overlay host element; mounting is a no-op while an
// element with this id is still attached.
const ElementID = "cw-checkout-overlay"

const script = `() => {
	if (document.getElementById("` + ElementID + `")) return false;
	const host = document.createElement("div");
	host.id = "` + ElementID + `";
	host.style.position = "fixed";
	host.style.bottom = "16px";
	host.style.right = "16px";
	host.style.zIndex = "2147483647";
	host.style.maxWidth = "90vw";
	document.body.appendChild(host);

	const shadow = host.attachShadow({ mode: "open" });
	const style = document.createElement("style");
	style.textContent = ` + "`" + `
		.cw-widget { font-family: -apple-system, Segoe UI, Roboto, Helvetica, Arial, sans-serif; width: 320px; max-width: 90vw; background: #ffffff; color: #0f172a; border: 1px solid rgba(0,0,0,0.1); border-radius: 12px; box-shadow: 0 8px 24px rgba(0,0,0,0.18); overflow: hidden; }
		.cw-header { background: #111827; color: #ffffff; padding: 10px 12px; display: flex; align-items: center; justify-content: space-between; }
		.cw-title { font-size: 14px; font-weight: 600; }
		.cw-close { all: unset; cursor: pointer; color: #9ca3af; font-size: 16px; line-height: 1; padding: 2px 6px; }
		.cw-body { padding: 12px; background: #f9fafb; font-size: 13px; }
	` + "`" + `;
	const wrapper = document.createElement("div");
	wrapper.className = "cw-widget";
	wrapper.innerHTML = '<div class="cw-header"><div class="cw-title">Checkout detected</div><button class="cw-close" aria-label="Close">×</button></div><div class="cw-body">We detected a checkout page.</div>';
	shadow.appendChild(style);
	shadow.appendChild(wrapper);

	const closeBtn = shadow.querySelector(".cw-close");
	if (closeBtn) closeBtn.addEventListener("click", () => host.remove());
	return true;
}`

// Script returns the mount function evaluated in the page. It resolves true
// when a new overlay was mounted, false when one already existed. Dismissal
// removes the host element and touches nothing else.
func Script() string {
	return script
}
