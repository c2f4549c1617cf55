package browser

// Injected DOM scripts. Elements resolved by QueryNode are parked in an
// in-page registry keyed by token; a token dies with the document, which
// is exactly the lifetime an element handle is allowed to have.

const jsQueryNode = `(kind, expr) => {
	const w = window;
	if (!w.__tabpilot) {
		w.__tabpilot = { nodes: {}, seq: 0 };
	}

	let el = null;
	if (kind === 'css') {
		el = document.querySelector(expr);
	} else if (kind === 'xpath') {
		const r = document.evaluate(expr, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null);
		el = r.singleNodeValue;
	} else if (kind === 'text') {
		const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT);
		let node;
		while ((node = walker.nextNode())) {
			if (node.textContent.includes(expr)) {
				el = node.parentElement;
				break;
			}
		}
	}

	if (!el) {
		return '';
	}
	const token = 'n' + (++w.__tabpilot.seq);
	w.__tabpilot.nodes[token] = el;
	return token;
}`

const jsNodeState = `(token) => {
	const reg = window.__tabpilot && window.__tabpilot.nodes;
	const el = reg ? reg[token] : null;
	if (!el || !el.isConnected) {
		return { exists: false, visible: false, enabled: false, text: '', tag_name: '' };
	}

	const rect = el.getBoundingClientRect();
	const style = window.getComputedStyle(el);
	return {
		exists: true,
		visible: rect.width > 0 && rect.height > 0 && style.visibility !== 'hidden' && style.display !== 'none',
		enabled: !el.disabled,
		text: (el.textContent || '').trim(),
		tag_name: el.tagName.toLowerCase()
	};
}`

const jsInteract = `(token, kind, text, value) => {
	const reg = window.__tabpilot && window.__tabpilot.nodes;
	const el = reg ? reg[token] : null;
	if (!el || !el.isConnected) {
		return { success: false, error: 'element no longer attached' };
	}

	const fire = (name) => el.dispatchEvent(new Event(name, { bubbles: true }));
	try {
		switch (kind) {
			case 'click':
				el.click();
				break;
			case 'double_click':
				el.dispatchEvent(new MouseEvent('dblclick', { bubbles: true }));
				break;
			case 'hover':
				el.dispatchEvent(new MouseEvent('mouseover', { bubbles: true }));
				break;
			case 'focus':
				el.focus();
				break;
			case 'type':
				el.focus();
				el.value = text;
				fire('input');
				fire('change');
				break;
			case 'clear':
				el.value = '';
				fire('input');
				fire('change');
				break;
			case 'select':
				if (el.tagName.toLowerCase() !== 'select') {
					return { success: false, error: 'select requires a <select> element' };
				}
				el.value = value;
				fire('change');
				break;
			case 'check':
				if (el.type !== 'checkbox' && el.type !== 'radio') {
					return { success: false, error: 'check requires a checkbox or radio input' };
				}
				el.checked = true;
				fire('change');
				break;
			case 'uncheck':
				if (el.type !== 'checkbox') {
					return { success: false, error: 'uncheck requires a checkbox input' };
				}
				el.checked = false;
				fire('change');
				break;
			default:
				return { success: false, error: 'unknown interaction: ' + kind };
		}
		return { success: true, error: '' };
	} catch (err) {
		return { success: false, error: err.message };
	}
}`

// Highlight draws an outline overlay and restores the previous style
// after a few seconds. The element's semantic state is untouched.
const jsHighlight = `(token, color) => {
	const reg = window.__tabpilot && window.__tabpilot.nodes;
	const el = reg ? reg[token] : null;
	if (!el || !el.isConnected) {
		return false;
	}

	const prev = { outline: el.style.outline, offset: el.style.outlineOffset };
	el.style.outline = '3px solid ' + (color || '#ff0000');
	el.style.outlineOffset = '2px';
	setTimeout(() => {
		el.style.outline = prev.outline;
		el.style.outlineOffset = prev.offset;
	}, 3000);
	return true;
}`

const jsPageInfo = `() => ({
	url: window.location.href,
	title: document.title,
	ready_state: document.readyState,
	element_count: document.querySelectorAll('*').length
})`
